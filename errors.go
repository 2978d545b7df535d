package prolink

import "errors"

// Sentinel error kinds surfaced through logging and metrics labels. The
// DBClient never returns these to a request's completion callback — the
// caller-visible contract stays "nil result means try again" — but internal
// log lines and the failure-total metric are labeled by kind so operators
// can tell a dead device apart from a flaky one.
var (
	// ErrUnknownDevice means a request named a device absent from the Registry.
	ErrUnknownDevice = errors.New("prolink: unknown device")

	// ErrInvalidParams means a device number outside 1..4, or a sort mode
	// outside the fixed enumeration.
	ErrInvalidParams = errors.New("prolink: invalid request parameters")

	// ErrParseFailure means the bounded reply-reassembly retry budget was
	// exhausted before a complete message (or message sequence) parsed.
	ErrParseFailure = errors.New("prolink: reply parse budget exhausted")

	// ErrProtocolFailure means the device replied, but with a type other
	// than "success", or a blob reply's success flag was zero.
	ErrProtocolFailure = errors.New("prolink: device rejected query")

	// ErrConnectionFailure means the TCP handshake to the device's
	// database server failed or returned a zero-length reply.
	ErrConnectionFailure = errors.New("prolink: connection handshake failed")
)
