package errors

import (
	"errors"
	"fmt"
)

// Class describes how a failure must be handled by its caller.
type Class string

const (
	// ClassTransient failures come from temporary unavailability and are safe to retry.
	ClassTransient Class = "transient"

	// ClassPermanent failures reproduce deterministically. Callers degrade the
	// affected value instead of retrying.
	ClassPermanent Class = "permanent"

	// ClassUnrecoverable failures make the whole job pointless to redeliver,
	// e.g. the package no longer exists or its data is malformed.
	ClassUnrecoverable Class = "unrecoverable"
)

// ClassifiedError carries a failure together with its handling class.
type ClassifiedError struct {
	Class Class
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Class) + " failure"
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classified wraps err with the given class. A nil err stays nil.
func Classified(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// Transient marks err as safe to retry.
func Transient(err error) error { return Classified(ClassTransient, err) }

// Permanent marks err as deterministic; retrying reproduces it.
func Permanent(err error) error { return Classified(ClassPermanent, err) }

// Unrecoverable marks err as terminal for the job: it must not be requeued.
func Unrecoverable(err error) error { return Classified(ClassUnrecoverable, err) }

// ClassOf returns the outermost class attached to err, if any.
func ClassOf(err error) (Class, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return "", false
}

// IsUnrecoverable reports whether err is classified unrecoverable anywhere in its chain.
func IsUnrecoverable(err error) bool {
	for err != nil {
		var ce *ClassifiedError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Class == ClassUnrecoverable {
			return true
		}
		err = ce.Err
	}
	return false
}

// IsTransient reports whether the outermost class of err is transient.
func IsTransient(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassTransient
}
