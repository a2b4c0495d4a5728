package vault

import "errors"

var (
	// ErrNoValidCredential means no usable credential exists for the
	// (owner, channel) pair. Not a transient condition: the OAuth flow has
	// to be re-run.
	ErrNoValidCredential = errors.New("no valid credential")
	// ErrCsrfStateMismatch rejects an OAuth callback whose state nonce was
	// never issued, expired or already consumed.
	ErrCsrfStateMismatch = errors.New("oauth state mismatch")
	// ErrChannelNotConfigured means no OAuth application is configured for
	// the channel.
	ErrChannelNotConfigured = errors.New("channel has no oauth configuration")
	// ErrNotFound is returned when a credential row does not exist.
	ErrNotFound = errors.New("credential not found")
)
