// Package errs provides types and support related to web v1 functionality.
package errs

import "errors"

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context. A non empty Reason is the stable
// value reported to the client in place of the error message.
type Trusted struct {
	Err    error
	Status int
	Reason string
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// NewRejected wraps a provided error with an HTTP status code and the stable
// reason clients match on.
func NewRejected(err error, reason string, status int) error {
	return &Trusted{Err: err, Status: status, Reason: reason}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap provides access to the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// Response returns the form of the error sent back to the client.
func (te *Trusted) Response() Response {
	if te.Reason == "" {
		return Response{Error: te.Err.Error()}
	}

	return Response{Error: te.Reason, Message: te.Err.Error()}
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
