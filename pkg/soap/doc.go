// Package soap implements the minimal SOAP-over-HTTP transport spoken by HNAP
// devices.
//
// It contains:
//   - [Params]: ordered action parameters serialized into the request envelope
//   - [Tree]: a schema-less key/value tree decoded from a response document,
//     with typed accessors for the fields callers expect
//   - [Client]: posts an envelope to the device endpoint and returns the
//     {Method}Response element of the reply
//
// The transport knows nothing about authentication. Callers inject the
// session cookie and signature headers per request.
package soap
