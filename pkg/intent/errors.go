package intent

import "fmt"

// NetworkError means an HTTP call to the IntentService failed to complete
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("intent service %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError means the IntentService answered with a failure status. The
// message comes from the server's error field when present.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("intent service %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}

// genericServerMessage is used when the server gives no error detail
const genericServerMessage = "something went wrong"
