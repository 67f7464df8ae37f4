package hnap

import (
	"errors"
	"fmt"
)

// Login failure reasons, reachable through errors.Is on an
// *AuthenticationError.
var (
	ErrBadCredentials = errors.New("incorrect username or password")
	ErrBadResponse    = errors.New("bad response from device")
)

// ErrDeviceError is the cause recorded when a response carries the in-band
// ERROR marker.
var ErrDeviceError = errors.New("device reported an error")

// AuthenticationError is returned when a login attempt fails. Reason is one
// of ErrBadCredentials or ErrBadResponse; Cause holds the underlying failure,
// if any.
type AuthenticationError struct {
	Reason error
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("hnap: authentication failed: %v: %v", e.Reason, e.Cause)
	}

	return fmt.Sprintf("hnap: authentication failed: %v", e.Reason)
}

func (e *AuthenticationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// DeviceCallError is returned when a signed call fails for any reason. The
// message is generic. The underlying failure is kept in Cause and is
// reachable through errors.Is and errors.As.
type DeviceCallError struct {
	Method string
	Cause  error
}

func (e *DeviceCallError) Error() string {
	return fmt.Sprintf("hnap: %s: device call failed", e.Method)
}

func (e *DeviceCallError) Unwrap() error { return e.Cause }
