package source

import "fmt"

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tariff API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("tariff API returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status suggests a later attempt may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
