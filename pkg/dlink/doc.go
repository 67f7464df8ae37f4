// Package dlink wraps an authenticated HNAP session in device facades: a
// SmartPlug for the DSP-W215 family of switchable power meters and a
// MotionSensor for the DCH-S150 family. Every facade method is a single
// round trip through a Caller, which logs in lazily on first use.
package dlink
