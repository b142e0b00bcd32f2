package loadgen

import (
	"context"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/G-Research/chimp/pkg/api"
)

// Memory holds Megabytes of resident memory for Duration, touching one page every TouchInterval
// so the buffer stays resident.
type Memory struct {
	Megabytes     uint32
	Duration      time.Duration
	TouchInterval time.Duration
	Reporter      Reporter

	buf       []byte
	allocated bool
}

// NewMemory returns a memory generator whose buffer is already allocated, so a size the process
// cannot hold is reported here rather than when the experiment runs.
func NewMemory(megabytes uint32, duration, touchInterval time.Duration, reporter Reporter) (*Memory, error) {
	m := &Memory{
		Megabytes:     megabytes,
		Duration:      duration,
		TouchInterval: touchInterval,
		Reporter:      reporter,
	}
	if err := m.Allocate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Memory) Kind() string {
	return api.KindMemory
}

// Allocate materialises the buffer. It is a no-op once the buffer exists.
func (m *Memory) Allocate() error {
	if m.allocated {
		return nil
	}
	size, err := bufferSize(m.Megabytes, math.MaxInt)
	if err != nil {
		return err
	}
	buf, err := allocate(size)
	if err != nil {
		return err
	}
	m.buf = buf
	m.allocated = true
	return nil
}

func (m *Memory) Run(ctx context.Context) error {
	interval := m.TouchInterval
	if interval <= 0 {
		interval = DefaultTouchInterval
	}

	if err := m.Allocate(); err != nil {
		return err
	}
	buf := m.buf
	m.buf = nil
	m.Reporter.MemoryAllocated(len(buf))
	defer m.Reporter.MemoryReleased()

	deadline := time.NewTimer(m.Duration)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pageSize := os.Getpagesize()
	offset := 0
	for {
		select {
		case <-ctx.Done():
			runtime.KeepAlive(buf)
			return ctx.Err()
		case <-deadline.C:
			runtime.KeepAlive(buf)
			return nil
		case <-ticker.C:
			if len(buf) > 0 {
				buf[offset]++
				offset = (offset + pageSize) % len(buf)
			}
		}
	}
}

// bufferSize converts megabytes to a byte count that fits in an int no larger than maxInt.
func bufferSize(megabytes uint32, maxInt uint64) (int, error) {
	size := uint64(megabytes) * bytesPerMegabyte
	if size > maxInt {
		return 0, errors.Errorf(
			"%s does not fit in the address space of this platform",
			units.BytesSize(float64(size)),
		)
	}
	return int(size), nil
}

// allocate returns a buffer of size bytes with every page written once, so it is backed by real memory.
// Sizes the runtime refuses outright come back as an error.
func allocate(size int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.Errorf("cannot allocate %s: %v", units.BytesSize(float64(size)), r)
		}
	}()
	buf = make([]byte, size)
	pageSize := os.Getpagesize()
	for i := 0; i < len(buf); i += pageSize {
		buf[i] = 1
	}
	return buf, nil
}
