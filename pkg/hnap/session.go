package hnap

import (
	"fmt"
	"slices"

	"github.com/scottmckenzie/dlink-smart-plug/pkg/soap"
)

// State is the authentication state of a Client.
type State int

const (
	// Unauthenticated means no private key is held; the next call logs in.
	Unauthenticated State = iota
	// Authenticating means a login exchange is in flight.
	Authenticating
	// Authenticated means a private key is held and calls are signed with it.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Credentials identify the device account. Username is almost always
// "Admin"; Password is the PIN printed on the device.
type Credentials struct {
	Username string
	Password string //nolint:gosec // runtime credential, never persisted.
}

// DefaultUsername is the account every HNAP plug ships with.
const DefaultUsername = "Admin"

// session is the mutable authentication state. It is guarded by Client.mu.
type session struct {
	loggedIn   bool
	privateKey string
	cookie     string
	authToken  string
	timestamp  int64
	actions    []string
	settings   soap.Tree
}

// updateAuthToken regenerates the token and timestamp for action. It is a
// no-op while no private key is held.
func (s *session) updateAuthToken(action string, now int64) {
	if s.privateKey == "" {
		return
	}

	s.timestamp = now
	s.authToken = AuthToken(s.privateKey, action, now)
}

// headers returns the per-request headers for the current session.
func (s *session) headers() map[string]string {
	h := make(map[string]string, 2)
	if s.cookie != "" {
		h["Cookie"] = "uid=" + s.cookie
	}

	if s.privateKey != "" && s.authToken != "" {
		h["HNAP_AUTH"] = fmt.Sprintf("%s %d", s.authToken, s.timestamp)
	}

	return h
}

func (s *session) actionList() []string {
	return slices.Clone(s.actions)
}
