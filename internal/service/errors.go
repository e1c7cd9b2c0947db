package service

import (
	"context"
	"errors"
	"net"
)

var (
	ErrUnknownSession      = errors.New("unknown session")
	ErrUnsupportedDocument = errors.New("unsupported document format")
	ErrEmptyDocument       = errors.New("empty document")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPaymentCompleted    = errors.New("payment already completed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMalformedResponse   = errors.New("malformed collaborator response")
)

// TransientError marks a failed call to an external collaborator. State is left untouched
// when one is returned, so the operation is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err came from a timeout, the network or a malformed collaborator reply.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedResponse)
}
