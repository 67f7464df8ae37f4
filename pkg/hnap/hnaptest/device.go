// Package hnaptest provides an in-process fake HNAP device for tests. The
// device runs the real challenge/response login and verifies the HNAP_AUTH
// signature of every other call, so a client that signs incorrectly sees the
// same in-band ERROR a real plug would send.
package hnaptest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
)

// Default login material, matching the values used throughout the tests.
const (
	DefaultChallenge = "ABC123"
	DefaultPublicKey = "DEADBEEF"
	DefaultCookie    = "sess1"
)

// Handler answers one action. It returns the inner XML of the
// {Method}Response element; a non-nil error is reported in-band through the
// ERROR marker.
type Handler func(params map[string]string) (string, error)

// Request is one call received by the device.
type Request struct {
	Method string
	Params map[string]string
	Header http.Header
}

// Device is a fake HNAP device. Configure the exported fields before Start.
type Device struct {
	Username  string
	PIN       string
	Challenge string
	PublicKey string
	Cookie    string

	DeviceName      string
	FirmwareVersion string
	HardwareVersion string
	ModelName       string
	Actions         []string

	mu            sync.Mutex
	handlers      map[string]Handler
	privateKey    string
	authenticated bool
	logins        int
	requests      []Request
}

// NewDevice creates a device that accepts user Admin with the given PIN.
func NewDevice(pin string) *Device {
	d := &Device{
		Username:        hnap.DefaultUsername,
		PIN:             pin,
		Challenge:       DefaultChallenge,
		PublicKey:       DefaultPublicKey,
		Cookie:          DefaultCookie,
		DeviceName:      "DSP-W215",
		FirmwareVersion: "2.22",
		HardwareVersion: "B1",
		ModelName:       "DSP-W215",
		Actions: []string{
			"GetDeviceSettings",
			"GetModuleProfile",
			"GetSocketSettings",
			"SetSocketSettings",
			"GetCurrentPowerConsumption",
		},
		handlers: make(map[string]Handler),
	}

	d.handlers["GetDeviceSettings"] = d.deviceSettings

	return d
}

// Start serves the device on a local httptest server and returns its base
// URL. The server is closed when the test ends.
func (d *Device) Start(tb testing.TB) string {
	tb.Helper()

	srv := httptest.NewServer(d)
	tb.Cleanup(srv.Close)

	return srv.URL
}

// Handle registers h for method, replacing any previous handler.
func (d *Device) Handle(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[method] = h
}

// SetActions replaces the action list reported by GetDeviceSettings.
func (d *Device) SetActions(actions ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Actions = actions
}

// Expire drops the device-side session, as a device reboot or session
// timeout would. The next signed call is rejected.
func (d *Device) Expire() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.authenticated = false
	d.privateKey = ""
}

// Logins returns the number of completed logins.
func (d *Device) Logins() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.logins
}

// Requests returns every request received so far.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Request, len(d.requests))
	copy(out, d.requests)

	return out
}

// Count returns how many times method was called.
func (d *Device) Count(method string) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Method == method {
			n++
		}
	}

	return n
}

// ServeHTTP implements http.Handler.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != soap.EndpointPath {
		http.NotFound(w, r)
		return
	}

	method, params, err := parseRequest(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.requests = append(d.requests, Request{Method: method, Params: params, Header: r.Header.Clone()})
	d.mu.Unlock()

	if method == "Login" {
		writeResponse(w, method, d.login(params, r.Header))
		return
	}

	if err := d.authorize(method, r.Header); err != nil {
		writeResponse(w, method, errorBody(method, err))
		return
	}

	d.mu.Lock()
	h, ok := d.handlers[method]
	d.mu.Unlock()

	if !ok {
		writeResponse(w, method, errorBody(method, fmt.Errorf("unsupported action %s", method)))
		return
	}

	inner, err := h(params)
	if err != nil {
		writeResponse(w, method, errorBody(method, err))
		return
	}

	writeResponse(w, method, fmt.Sprintf("<%sResult>OK</%sResult>%s", method, method, inner))
}

func (d *Device) login(params map[string]string, header http.Header) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch params["Action"] {
	case "request":
		d.authenticated = false
		d.privateKey = hnap.PrivateKey(d.PublicKey, d.PIN, d.Challenge)

		return fmt.Sprintf("<LoginResult>OK</LoginResult><Challenge>%s</Challenge><Cookie>%s</Cookie><PublicKey>%s</PublicKey>",
			d.Challenge, d.Cookie, d.PublicKey)
	case "login":
		ok := d.privateKey != "" &&
			params["Username"] == d.Username &&
			header.Get("Cookie") == "uid="+d.Cookie &&
			params["LoginPassword"] == hnap.LoginPassword(d.privateKey, d.Challenge)
		if !ok {
			return "<LoginResult>failed</LoginResult>"
		}

		d.authenticated = true
		d.logins++

		return "<LoginResult>success</LoginResult>"
	default:
		return "<LoginResult>failed</LoginResult>"
	}
}

func (d *Device) authorize(method string, header http.Header) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.authenticated {
		return errors.New("not logged in")
	}

	if header.Get("Cookie") != "uid="+d.Cookie {
		return errors.New("bad cookie")
	}

	var token string
	var ts int64
	if _, err := fmt.Sscanf(header.Get("HNAP_AUTH"), "%s %d", &token, &ts); err != nil {
		return fmt.Errorf("bad HNAP_AUTH header: %w", err)
	}

	if token != hnap.AuthToken(d.privateKey, method, ts) {
		return errors.New("bad signature")
	}

	return nil
}

func (d *Device) deviceSettings(map[string]string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "<DeviceName>%s</DeviceName>", d.DeviceName)
	fmt.Fprintf(&b, "<FirmwareVersion>%s</FirmwareVersion>", d.FirmwareVersion)
	fmt.Fprintf(&b, "<HardwareVersion>%s</HardwareVersion>", d.HardwareVersion)
	fmt.Fprintf(&b, "<ModelName>%s</ModelName>", d.ModelName)
	b.WriteString("<SOAPActions>")

	for _, a := range d.Actions {
		fmt.Fprintf(&b, "<string>%s%s</string>", hnap.ActionBaseURL, a)
	}

	b.WriteString("</SOAPActions>")

	return b.String(), nil
}

func parseRequest(body io.Reader) (string, map[string]string, error) {
	tree, err := soap.Decode(body)
	if err != nil {
		return "", nil, err
	}

	soapBody, err := tree.Tree("soap:Envelope", "soap:Body")
	if err != nil {
		return "", nil, err
	}

	for key, v := range soapBody {
		if strings.HasPrefix(key, "@") {
			continue
		}

		params := make(map[string]string)
		if node, ok := v.(soap.Tree); ok {
			for name, value := range node {
				if s, ok := value.(string); ok && !strings.HasPrefix(name, "@") {
					params[name] = s
				}
			}
		}

		return key, params, nil
	}

	return "", nil, errors.New("empty soap body")
}

func errorBody(method string, err error) string {
	return fmt.Sprintf("<%sResult>ERROR</%sResult><ERROR>%s</ERROR>", method, method, err.Error())
}

// Envelope wraps body in a SOAP response envelope.
func Envelope(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body>` + body + `</soap:Body></soap:Envelope>`
}

func writeResponse(w http.ResponseWriter, method, inner string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = io.WriteString(w, Envelope(fmt.Sprintf(`<%sResponse xmlns="%s">%s</%sResponse>`,
		method, hnap.ActionBaseURL, inner, method)))
}
