package gradio

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection wraps transport failures and unusable descriptor
	// responses.
	ErrConnection = errors.New("gradio: connection failed")

	// ErrUnknownFunction is returned when a function name is not present in
	// the server's descriptor.
	ErrUnknownFunction = errors.New("gradio: unknown function")

	// ErrNotConfigured is returned for an empty base URL.
	ErrNotConfigured = errors.New("gradio: server url not configured")
)

// RemoteError reports a non-200 predict response or a response carrying an
// error field.
type RemoteError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gradio: %s failed: %d %s", e.Function, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gradio: %s returned error: %s", e.Function, e.Message)
}

// truncate cuts s to at most n bytes for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
