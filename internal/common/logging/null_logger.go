package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullLogger discards everything. Useful to keep test output quiet.
var NullLogger = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}

// NullEntry is an entry on NullLogger, for components that take a *logrus.Entry.
var NullEntry = logrus.NewEntry(NullLogger)
