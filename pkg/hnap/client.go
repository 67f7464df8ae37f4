package hnap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
)

const (
	loginMethod    = "Login"
	settingsMethod = "GetDeviceSettings"
	errorMarker    = "ERROR"
)

// Transport sends one SOAP action and returns its parsed response.
// *soap.Client implements it.
type Transport interface {
	Call(ctx context.Context, method string, params soap.Params, headers map[string]string) (soap.Tree, error)
}

// pendingLogin holds the outcome of an in-flight login so that concurrent
// callers waiting on it share the result.
type pendingLogin struct {
	done chan struct{}
	err  error
}

// Client is the HNAP authentication engine for one device session. It is
// safe for concurrent use; concurrent calls that find no session wait on a
// single shared login.
type Client struct {
	creds     Credentials
	transport Transport
	log       *slog.Logger
	now       func() time.Time
	metrics   *Metrics

	mu      sync.Mutex
	sess    session
	pending *pendingLogin
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock replaces time.Now as the source of token timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics records call and login outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client that authenticates with creds over transport. An
// empty Username falls back to DefaultUsername. No request is made until
// the first call.
func New(transport Transport, creds Credentials, opts ...Option) *Client {
	if creds.Username == "" {
		creds.Username = DefaultUsername
	}

	c := &Client{
		creds:     creds,
		transport: transport,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Call invokes method on the device and returns its response. Unless method
// is Login, a session is established first when none is held. Any failure,
// including a response carrying the ERROR marker, drops the private key so
// the next call logs in again, and is returned as a *DeviceCallError.
func (c *Client) Call(ctx context.Context, method string, params soap.Params) (soap.Tree, error) {
	if method != loginMethod {
		if err := c.ensureLogin(ctx, method); err != nil {
			return nil, err
		}
	}

	return c.call(ctx, method, params)
}

// Login performs the two-phase challenge/response exchange. If a login is
// already in flight, Login waits for it and returns its result.
func (c *Client) Login(ctx context.Context) error {
	return c.coalesceLogin(ctx, loginMethod, true)
}

// DeviceActions fetches GetDeviceSettings, caches the settings and returns
// the supported action names.
func (c *Client) DeviceActions(ctx context.Context) ([]string, error) {
	if err := c.ensureLogin(ctx, settingsMethod); err != nil {
		return nil, err
	}

	return c.fetchDeviceActions(ctx)
}

// SOAPActions returns the actions supported by one device module.
func (c *Client) SOAPActions(ctx context.Context, moduleID string) (soap.Tree, error) {
	return c.Call(ctx, "GetModuleSOAPActions", soap.Params{}.Add("ModuleID", moduleID))
}

// Settings returns the GetDeviceSettings payload cached by the last
// successful login, or nil before one.
func (c *Client) Settings() soap.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sess.settings
}

// Actions returns the cached list of supported action names.
func (c *Client) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sess.actionList()
}

// LoggedIn reports whether the last login completed. It is not reset when a
// later call fails, so it can read true while State is Unauthenticated.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sess.loggedIn
}

// State returns the current authentication state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.pending != nil:
		return Authenticating
	case c.sess.privateKey != "":
		return Authenticated
	default:
		return Unauthenticated
	}
}

// Close releases the transport if it holds resources.
func (c *Client) Close() error {
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// ensureLogin logs in on behalf of method unless a private key is already
// held.
func (c *Client) ensureLogin(ctx context.Context, method string) error {
	return c.coalesceLogin(ctx, method, false)
}

// coalesceLogin runs login, or joins one already in flight. Without force it
// returns immediately when a private key is held. A joined caller whose ctx
// ends first gets a *DeviceCallError for method wrapping ctx.Err().
func (c *Client) coalesceLogin(ctx context.Context, method string, force bool) error {
	c.mu.Lock()

	if pl := c.pending; pl != nil {
		c.mu.Unlock()

		select {
		case <-pl.done:
			return pl.err
		case <-ctx.Done():
			return &DeviceCallError{Method: method, Cause: ctx.Err()}
		}
	}

	if !force && c.sess.privateKey != "" {
		c.mu.Unlock()
		return nil
	}

	pl := &pendingLogin{done: make(chan struct{})}
	c.pending = pl
	c.mu.Unlock()

	pl.err = c.login(ctx)

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	close(pl.done)

	return pl.err
}

func (c *Client) login(ctx context.Context) error {
	c.log.InfoContext(ctx, "logging into device", "username", c.creds.Username)

	c.mu.Lock()
	c.sess.loggedIn = false
	c.mu.Unlock()

	resp, err := c.call(ctx, loginMethod, loginParams("request", c.creds.Username, ""))
	if err != nil {
		return c.loginFailed(ctx, err)
	}

	challenge, err := resp.String("Challenge")
	if err != nil {
		return c.loginFailed(ctx, &AuthenticationError{Reason: ErrBadResponse, Cause: err})
	}

	publicKey, err := resp.String("PublicKey")
	if err != nil {
		return c.loginFailed(ctx, &AuthenticationError{Reason: ErrBadResponse, Cause: err})
	}

	cookie, err := resp.String("Cookie")
	if err != nil {
		return c.loginFailed(ctx, &AuthenticationError{Reason: ErrBadResponse, Cause: err})
	}

	c.log.DebugContext(ctx, "login challenge",
		"challenge", challenge,
		"public_key", publicKey,
		"cookie", cookie,
	)

	privateKey := PrivateKey(publicKey, c.creds.Password, challenge)

	c.mu.Lock()
	c.sess.cookie = cookie
	c.sess.privateKey = privateKey
	c.mu.Unlock()

	c.log.DebugContext(ctx, "derived private key", "private_key", privateKey)

	resp, err = c.call(ctx, loginMethod, loginParams("login", c.creds.Username, LoginPassword(privateKey, challenge)))
	if err != nil {
		return c.loginFailed(ctx, err)
	}

	result, err := resp.String("LoginResult")
	if err != nil {
		return c.loginFailed(ctx, &AuthenticationError{Reason: ErrBadResponse, Cause: err})
	}

	if !strings.EqualFold(result, "success") {
		return c.loginFailed(ctx, &AuthenticationError{Reason: ErrBadCredentials})
	}

	c.mu.Lock()
	haveActions := len(c.sess.actions) > 0
	c.mu.Unlock()

	if !haveActions {
		if _, err := c.fetchDeviceActions(ctx); err != nil {
			return c.loginFailed(ctx, err)
		}
	}

	c.mu.Lock()
	c.sess.loggedIn = true
	c.mu.Unlock()

	c.metrics.observeLogin("success")
	c.log.InfoContext(ctx, "logged into device")

	return nil
}

// loginFailed drops any half-established key and classifies err.
// Undecodable responses become an AuthenticationError; other call failures
// pass through unchanged.
func (c *Client) loginFailed(ctx context.Context, err error) error {
	c.clearPrivateKey()

	var authErr *AuthenticationError

	switch {
	case errors.As(err, &authErr):
	case errors.Is(err, soap.ErrMalformedResponse):
		err = &AuthenticationError{Reason: ErrBadResponse, Cause: err}
	}

	result := "error"
	if errors.Is(err, ErrBadCredentials) {
		result = "bad_credentials"
	}

	c.metrics.observeLogin(result)
	c.log.WarnContext(ctx, "login failed", "error", err)

	return err
}

func (c *Client) fetchDeviceActions(ctx context.Context) ([]string, error) {
	settings, err := c.call(ctx, settingsMethod, nil)
	if err != nil {
		return nil, err
	}

	urls, err := settings.Strings("SOAPActions", "string")
	if err != nil {
		c.log.WarnContext(ctx, "device settings carry no action list", "error", err)
	}

	actions := make([]string, 0, len(urls))
	for _, u := range urls {
		actions = append(actions, u[strings.LastIndex(u, "/")+1:])
	}

	c.mu.Lock()
	c.sess.settings = settings
	c.sess.actions = actions
	c.mu.Unlock()

	return actions, nil
}

// call signs and sends one request. It never logs in.
func (c *Client) call(ctx context.Context, method string, params soap.Params) (soap.Tree, error) {
	callID := uuid.NewString()

	c.mu.Lock()
	c.sess.updateAuthToken(method, c.now().Unix())
	headers := c.sess.headers()
	c.mu.Unlock()

	if token, ok := headers["HNAP_AUTH"]; ok {
		c.log.DebugContext(ctx, "generated auth token", "call_id", callID, "method", method, "token", token)
	}

	start := time.Now()
	resp, err := c.transport.Call(ctx, method, params, headers)

	if err == nil && resp.Has(errorMarker) {
		err = fmt.Errorf("%w: %v", ErrDeviceError, resp[errorMarker])
	}

	c.metrics.observeCall(method, err, time.Since(start))

	if err != nil {
		c.log.ErrorContext(ctx, "got an error, resetting private key",
			"call_id", callID,
			"method", method,
			"error", err,
		)
		c.clearPrivateKey()

		return nil, &DeviceCallError{Method: method, Cause: err}
	}

	c.log.DebugContext(ctx, "call succeeded", "call_id", callID, "method", method)

	return resp, nil
}

func (c *Client) clearPrivateKey() {
	c.mu.Lock()
	c.sess.privateKey = ""
	c.mu.Unlock()
}

func loginParams(action, username, password string) soap.Params {
	return soap.Params{}.
		Add("Action", action).
		Add("Username", username).
		Add("LoginPassword", password).
		Add("Captcha", "")
}
