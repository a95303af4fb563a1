package wallbox

import "fmt"

// ConfigError means a connection cannot produce a working client at all:
// unknown provider, missing required field, undecryptable configuration.
// Sync for that connection must not proceed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "wallbox configuration: " + e.Reason
}

// AuthError means the vendor rejected our credentials or token. Fatal
// for the current pass, retried on the next scheduled run.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ParseError is scoped to a single session record: that record is
// dropped, its peers in the same batch proceed.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
