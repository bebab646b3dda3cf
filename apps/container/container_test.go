package container_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tathmini/apps/container"
	"github.com/trezcool/tathmini/core/evaluation"
)

type closingScheduler struct {
	closed bool
	err    error
}

func (s *closingScheduler) Schedule(context.Context, evaluation.Evaluation) error { return nil }

func (s *closingScheduler) Close() error {
	s.closed = true
	return s.err
}

type errorLogger struct {
	errors []string
}

func (l *errorLogger) Debug(string, ...interface{}) {}
func (l *errorLogger) Info(string, ...interface{})  {}
func (l *errorLogger) Warn(string, ...interface{})  {}
func (l *errorLogger) Fatal(string, ...interface{}) {}
func (l *errorLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func TestCloseScheduler(t *testing.T) {
	tests := []struct {
		name       string
		sched      *closingScheduler
		wantErrors int
	}{
		{name: "closed", sched: &closingScheduler{}},
		{name: "close error reported", sched: &closingScheduler{err: errors.New("redis gone")}, wantErrors: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(errorLogger)
			container.CloseScheduler(tt.sched, logger)
			assert.True(t, tt.sched.closed)
			assert.Len(t, logger.errors, tt.wantErrors)
		})
	}

	t.Run("noop scheduler", func(t *testing.T) {
		logger := new(errorLogger)
		container.CloseScheduler(evaluation.NoopScheduler{}, logger)
		assert.Empty(t, logger.errors)
	})
}
