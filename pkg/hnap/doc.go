// Package hnap implements the HNAP authentication engine: the two-phase
// challenge/response login, per-request HMAC signing and lazy
// re-authentication after a failed call.
//
// A [Client] wraps a [Transport] (normally a [github.com/scottmckenzie/dlink-smart-plug/pkg/soap.Client])
// and exposes a single primitive, [Client.Call], that device facades build on.
// The first call on a fresh client, and the first call after any failure,
// performs a login before the request is signed and sent.
package hnap
