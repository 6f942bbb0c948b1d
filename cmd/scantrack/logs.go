package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/sensor"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/storage/sqlite"
	"github.com/banshee-data/scantrack/internal/system"
	"github.com/banshee-data/scantrack/internal/tracking"
)

// logStreams are the ops, diag and trace writers shared by every package.
type logStreams struct {
	ops, diag, trace io.Writer
	closers          []io.Closer
}

// openLogStreams returns stderr-backed streams when dir is empty, or
// rotating files ops.log, diag.log and trace.log under dir. The trace
// stream is only opened when trace is set.
func openLogStreams(dir string, trace bool) (*logStreams, error) {
	if dir == "" {
		s := &logStreams{ops: os.Stderr}
		if trace {
			s.diag, s.trace = os.Stderr, os.Stderr
		}
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	file := func(name string, maxSize int) *lumberjack.Logger {
		return &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    maxSize, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
	}
	s := &logStreams{}
	ops, diag := file("ops.log", 16), file("diag.log", 64)
	s.ops, s.diag = io.MultiWriter(os.Stderr, ops), diag
	s.closers = append(s.closers, ops, diag)
	if trace {
		tr := file("trace.log", 512)
		s.trace = tr
		s.closers = append(s.closers, tr)
	}
	return s, nil
}

// install routes every package's streams through s. monitoring events
// go to the ops stream.
func (s *logStreams) install() {
	gimbal.SetLogWriters(s.ops, s.diag, s.trace)
	sensor.SetLogWriters(s.ops, s.diag, s.trace)
	tracking.SetLogWriters(s.ops, s.diag, s.trace)
	shootlist.SetLogWriters(s.ops, s.diag, s.trace)
	system.SetLogWriters(s.ops, s.diag, s.trace)
	sqlite.SetLogWriters(s.ops, s.diag, s.trace)
	monitoring.SetLogWriter(s.ops)
}

// Close closes every rotating file and reports all failures.
func (s *logStreams) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
