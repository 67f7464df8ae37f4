package soap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actionNS = "http://purenetworks.com/HNAP1/"

func envelope(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">` +
		`<soap:Body>` + body + `</soap:Body></soap:Envelope>`
}

type capturedRequest struct {
	mu     sync.Mutex
	header http.Header
	body   string
	path   string
}

func (c *capturedRequest) snapshot() (http.Header, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.header, c.body, c.path
}

// newDevice starts a server that records the request and replies with reply.
func newDevice(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured.mu.Lock()
		captured.header = r.Header.Clone()
		captured.body = string(raw)
		captured.path = r.URL.Path
		captured.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	return srv, captured
}

func TestBuildEnvelope(t *testing.T) {
	params := Params{}.
		Add("Action", "request").
		Add("Username", "Admin").
		Add("LoginPassword", "").
		Add("Captcha", "")

	got := string(BuildEnvelope(actionNS, "Login", params))

	want := "<?xml version='1.0' encoding='utf-8'?>\n" +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<soap:Body><Login xmlns="http://purenetworks.com/HNAP1/">` +
		`<Action>request</Action><Username>Admin</Username><LoginPassword /><Captcha />` +
		`</Login></soap:Body></soap:Envelope>`
	assert.Equal(t, want, got)
}

func TestBuildEnvelope_NoParams(t *testing.T) {
	got := string(BuildEnvelope(actionNS, "GetDeviceSettings", nil))
	assert.Contains(t, got, `<soap:Body><GetDeviceSettings xmlns="http://purenetworks.com/HNAP1/" /></soap:Body>`)
}

func TestBuildEnvelope_EscapesText(t *testing.T) {
	got := string(BuildEnvelope(actionNS, "SetSocketSettings", Params{}.Add("NickName", "a<b & c>")))
	assert.Contains(t, got, "<NickName>a&lt;b &amp; c&gt;</NickName>")
}

func TestParams_AddCoercesValues(t *testing.T) {
	p := Params{}.Add("ModuleID", 1).Add("Enabled", true)

	v, ok := p.Get("ModuleID")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = p.Get("Enabled")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok = p.Get("Missing")
	assert.False(t, ok)
}

func TestCall_RoundTrip(t *testing.T) {
	srv, captured := newDevice(t, http.StatusOK, envelope(
		`<GetCurrentPowerConsumptionResponse xmlns="http://purenetworks.com/HNAP1/">`+
			`<GetCurrentPowerConsumptionResult>OK</GetCurrentPowerConsumptionResult>`+
			`<CurrentConsumption>12.5</CurrentConsumption>`+
			`</GetCurrentPowerConsumptionResponse>`))

	c := New(srv.URL, actionNS)
	defer func() { _ = c.Close() }()

	resp, err := c.Call(context.Background(), "GetCurrentPowerConsumption",
		Params{}.Add("ModuleID", "1"), nil)
	require.NoError(t, err)

	power, err := resp.Float("CurrentConsumption")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, power, 1e-9)

	header, body, path := captured.snapshot()
	assert.Equal(t, EndpointPath, path)
	assert.Contains(t, body, "<ModuleID>1</ModuleID>")
	assert.Equal(t, `"http://purenetworks.com/HNAP1/GetCurrentPowerConsumption"`, header.Get("SOAPAction"))
}

func TestCall_InjectsHeaders(t *testing.T) {
	srv, captured := newDevice(t, http.StatusOK, envelope(`<GetDeviceSettingsResponse />`))

	c := New(srv.URL, actionNS)

	_, err := c.Call(context.Background(), "GetDeviceSettings", nil, map[string]string{
		"Cookie":     "uid=sess1",
		"HNAP_AUTH":  "ABCDEF 1700000000",
		"SOAPAction": `"http://example.com/Other"`,
	})
	require.NoError(t, err)

	header, _, _ := captured.snapshot()
	assert.Equal(t, "uid=sess1", header.Get("Cookie"))
	assert.Equal(t, "ABCDEF 1700000000", header.Get("HNAP_AUTH"))
	assert.Equal(t, `"http://purenetworks.com/HNAP1/GetDeviceSettings"`, header["SOAPAction"][0])
	assert.Len(t, header["SOAPAction"], 1)
	assert.Equal(t, "text/xml; charset=utf-8", header.Get("Content-Type"))
}

func TestCall_EmptyResponseElement(t *testing.T) {
	srv, _ := newDevice(t, http.StatusOK, envelope(`<SetSocketSettingsResponse></SetSocketSettingsResponse>`))

	c := New(srv.URL, actionNS)

	resp, err := c.Call(context.Background(), "SetSocketSettings", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestCall_MissingEnvelope(t *testing.T) {
	srv, _ := newDevice(t, http.StatusOK, `<html><body>login required</body></html>`)

	c := New(srv.URL, actionNS)

	_, err := c.Call(context.Background(), "GetDeviceSettings", nil, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "decode", te.Op)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCall_MissingMethodResponse(t *testing.T) {
	srv, _ := newDevice(t, http.StatusOK, envelope(`<OtherResponse />`))

	c := New(srv.URL, actionNS)

	_, err := c.Call(context.Background(), "GetDeviceSettings", nil, nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCall_InvalidXML(t *testing.T) {
	srv, _ := newDevice(t, http.StatusOK, `<soap:Envelope><soap:Body>`)

	c := New(srv.URL, actionNS)

	_, err := c.Call(context.Background(), "Login", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCall_NonSuccessStatus(t *testing.T) {
	srv, _ := newDevice(t, http.StatusInternalServerError, "boom")

	c := New(srv.URL, actionNS)

	_, err := c.Call(context.Background(), "Login", nil, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "status", te.Op)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestCall_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(srv.URL, actionNS, WithTimeout(50*time.Millisecond))

	_, err := c.Call(context.Background(), "Login", nil, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "do request", te.Op)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
}

func TestNew_EndpointURL(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"192.168.0.20", "http://192.168.0.20/HNAP1"},
		{"192.168.0.20:8080", "http://192.168.0.20:8080/HNAP1"},
		{"http://plug.local/", "http://plug.local/HNAP1"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.address, actionNS).URL)
		})
	}
}

func TestClose_ExternalClientUntouched(t *testing.T) {
	hc := &http.Client{}
	c := New("127.0.0.1", actionNS, WithHTTPClient(hc))
	assert.NoError(t, c.Close())
}
