package logging

import (
	log "github.com/sirupsen/logrus"
)

// TopmostWithCause recursively calls cause on the given error until it finds an error that does
// not implement the causer interface, and returns the error directly preceding that one.
// Typically, that is the final or penultimate error in the chain.
// This function is meant to be used together with pkg/errors wrapping.
//
// Logging the error returned by this one with the %+v verb provides a stack trace recorded at
// the point the error was created.
func TopmostWithCause(err error) error {
	type causer interface {
		Cause() error
	}

	rv := err
	for rv != nil {
		cause, ok := rv.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
		_, ok = err.(causer)
		if !ok {
			break
		}
		rv = err
	}
	return rv
}

// WithStacktrace returns an entry carrying err and, if err was created by pkg/errors, the stack
// trace recorded where it was created.
func WithStacktrace(logger *log.Entry, err error) *log.Entry {
	logger = logger.WithError(err)
	if stackErr := TopmostWithCause(err); stackErr != nil {
		logger = logger.WithField("stacktrace", stackTrace(stackErr))
	}
	return logger
}
