package logging

import (
	"fmt"

	"github.com/pkg/errors"
)

// Unexported but considered part of the stable interface of pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func stackTrace(err error) string {
	if st, ok := err.(stackTracer); ok {
		return fmt.Sprintf("%+v", st.StackTrace())
	}
	return ""
}
