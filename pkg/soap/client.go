package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request/response round trip.
const DefaultTimeout = 10 * time.Second

// EndpointPath is the fixed HNAP endpoint on every device.
const EndpointPath = "/HNAP1"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// ErrMalformedResponse is returned when a response body is not a
// recognizable SOAP message.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError wraps every failure raised by the transport: HTTP errors,
// timeouts, non-2xx statuses and undecodable bodies.
type TransportError struct {
	Method string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("soap: %s: %s: %v", e.Method, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client posts SOAP envelopes to a single device endpoint.
type Client struct {
	URL    string // Full endpoint URL, e.g. http://192.168.0.20/HNAP1.
	Action string // Action namespace, used for SOAPAction and the action element.

	client  *http.Client
	owned   bool
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient makes the Client use hc instead of creating its own. The
// caller keeps ownership of hc; Close leaves it untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
		c.owned = false
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a Client for the device at address. The address is a host or
// host:port; a value that already carries a scheme is used as the base URL
// as-is.
func New(address, action string, opts ...Option) *Client {
	c := &Client{
		URL:     endpointURL(address),
		Action:  action,
		timeout: DefaultTimeout,
		log:     slog.New(slog.DiscardHandler),
	}

	c.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	c.owned = true

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func endpointURL(address string) string {
	base := strings.TrimSuffix(address, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return base + EndpointPath
}

// Call sends method with params and returns the {method}Response element of
// the reply. headers are sent with their names exactly as given; SOAPAction
// is always derived from Action and method.
func (c *Client) Call(ctx context.Context, method string, params Params, headers map[string]string) (Tree, error) {
	body := BuildEnvelope(c.Action, method, params)
	c.log.DebugContext(ctx, "soap request", "method", method, "xml", string(body))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Method: method, Op: "build request", Err: err}
	}

	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	for k, v := range headers {
		req.Header[k] = []string{v}
	}

	req.Header["SOAPAction"] = []string{`"` + c.Action + method + `"`}

	resp, err := c.client.Do(req) //nolint:gosec // URL is built from the configured device address.
	if err != nil {
		return nil, &TransportError{Method: method, Op: "do request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Method: method,
			Op:     "status",
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	return c.unwrap(ctx, method, raw)
}

// unwrap decodes raw and extracts Envelope → Body → {method}Response.
func (c *Client) unwrap(ctx context.Context, method string, raw []byte) (Tree, error) {
	parsed, err := Decode(bytes.NewReader(raw))
	if err != nil {
		c.log.ErrorContext(ctx, "undecodable response", "method", method, "body", string(raw))
		return nil, &TransportError{Method: method, Op: "decode", Err: fmt.Errorf("%w: %w", ErrMalformedResponse, err)}
	}

	if !parsed.Has("soap:Envelope") {
		c.log.ErrorContext(ctx, "response is not a soap envelope", "method", method, "parsed", parsed)
		return nil, &TransportError{Method: method, Op: "decode", Err: ErrMalformedResponse}
	}

	v, ok := parsed.Lookup("soap:Envelope", "soap:Body", method+"Response")
	if !ok {
		return nil, &TransportError{
			Method: method,
			Op:     "decode",
			Err:    fmt.Errorf("%w: no %sResponse in body", ErrMalformedResponse, method),
		}
	}

	switch val := v.(type) {
	case Tree:
		return val, nil
	case string:
		if val == "" {
			return Tree{}, nil
		}

		return Tree{"#text": val}, nil
	}

	return nil, &TransportError{
		Method: method,
		Op:     "decode",
		Err:    fmt.Errorf("%w: repeated %sResponse", ErrMalformedResponse, method),
	}
}

// Close releases idle connections held by a Client-owned HTTP client.
func (c *Client) Close() error {
	if c.owned {
		c.client.CloseIdleConnections()
	}

	return nil
}
