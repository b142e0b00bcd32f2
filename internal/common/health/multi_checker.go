package health

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// MultiChecker is healthy only if all of its checkers are. Checkers may be added after
// the MultiChecker has been handed to an HTTP handler.
type MultiChecker struct {
	mu       sync.Mutex
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	mc.mu.Lock()
	checkers := append([]Checker(nil), mc.checkers...)
	mc.mu.Unlock()

	var result *multierror.Error
	for _, checker := range checkers {
		if err := checker.Check(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.checkers = append(mc.checkers, checker)
}
