package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

type DuplicateKind int

const (
	DuplicateUnknown DuplicateKind = iota
	DuplicateUser
	DuplicateEmail
)

func (k DuplicateKind) String() string {
	switch k {
	case DuplicateUser:
		return "user"
	case DuplicateEmail:
		return "email"
	default:
		return "unknown"
	}
}

// DuplicateError reports that a customer with the same user id or email
// already exists.
type DuplicateError struct {
	Kind DuplicateKind
}

func (e DuplicateError) Error() string {
	switch e.Kind {
	case DuplicateUser:
		return "a customer already exists for this user"
	case DuplicateEmail:
		return "a customer already exists with this email"
	default:
		return "customer already exists"
	}
}

// Is matches another DuplicateError of the same kind. DuplicateUnknown on
// the target side matches every kind.
func (e DuplicateError) Is(target error) bool {
	var t DuplicateError
	switch v := target.(type) {
	case DuplicateError:
		t = v
	case *DuplicateError:
		t = *v
	default:
		return false
	}
	return t.Kind == DuplicateUnknown || t.Kind == e.Kind
}

var (
	ErrDuplicate      = DuplicateError{}
	ErrDuplicateUser  = DuplicateError{Kind: DuplicateUser}
	ErrDuplicateEmail = DuplicateError{Kind: DuplicateEmail}
)

// ProtectedKeyError is returned when a default meta key is targeted by the
// generic delete path.
type ProtectedKeyError struct {
	Key string
}

func (e ProtectedKeyError) Error() string {
	if e.Key == "" {
		return "meta key is protected"
	}
	return fmt.Sprintf("meta key %q is protected", e.Key)
}

func (e ProtectedKeyError) Is(target error) bool {
	_, ok := target.(ProtectedKeyError)
	if ok {
		return true
	}
	_, ok = target.(*ProtectedKeyError)
	return ok
}

var ErrProtectedKey = ProtectedKeyError{}

// StorageError wraps a failure of the persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage: %s failed", e.Op)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

func (e StorageError) Is(target error) bool {
	_, ok := target.(StorageError)
	if ok {
		return true
	}
	_, ok = target.(*StorageError)
	return ok
}

var ErrStorage = StorageError{}

var (
	ErrAmbiguousMeta = errors.New("meta key has multiple values, previous value required")
	ErrInvalidSort   = errors.New("invalid sort column")
	ErrInvalidInput  = errors.New("invalid input")
)
