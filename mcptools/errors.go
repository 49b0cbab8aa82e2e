package mcptools

import "github.com/cockroachdb/errors"

var (
	// ErrConnectTimeout indicates the initialize handshake did not complete
	// within the configured timeout. Launching the server process itself is
	// not subject to the timeout.
	ErrConnectTimeout = errors.New("initialize handshake timed out")

	// ErrNotReady indicates an operation that requires an established
	// session was attempted in another state.
	ErrNotReady = errors.New("session is not ready")
)
