package embedding

import "fmt"

// ServiceError reports a failed call to the embedding service: a transport
// failure, an undecodable response, or a response missing expected fields.
// Batch embedding is all-or-nothing; there is no partial success.
type ServiceError struct {
	Reason string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding service: %s: %v", e.Reason, e.Err)
	}
	return "embedding service: " + e.Reason
}

func (e *ServiceError) Unwrap() error { return e.Err }
