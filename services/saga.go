package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultCompensationTimeout = 10 * time.Second

// sagaStep is one local write and the delete that undoes it. compensate may
// be nil for a final step that has nothing after it.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga executes steps strictly in order. When step N fails, steps N-1..0 are
// compensated in reverse and step N's error is returned wrapped in an
// abortedError.
type saga struct {
	steps               []sagaStep
	logger              *zap.Logger
	compensationTimeout time.Duration
}

// abortedError marks an error that stopped a saga after its compensation
// pass. The step error stays reachable through Unwrap.
type abortedError struct {
	err error
}

func (e *abortedError) Error() string { return e.err.Error() }
func (e *abortedError) Unwrap() error { return e.err }

// sagaAborted reports whether err came out of a saga that rolled back.
func sagaAborted(err error) bool {
	var a *abortedError
	return errors.As(err, &a)
}

func newSaga(logger *zap.Logger, steps ...sagaStep) *saga {
	return &saga{steps: steps, logger: logger, compensationTimeout: defaultCompensationTimeout}
}

func (s *saga) add(step sagaStep) {
	s.steps = append(s.steps, step)
}

func (s *saga) execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Saga deadline reached before step", zap.String("step", step.name), zap.Error(err))
			s.compensate(ctx, i)
			return &abortedError{err: err}
		}
		if err := step.run(ctx); err != nil {
			s.logger.Error("Saga step failed", zap.String("step", step.name), zap.Error(err))
			s.compensate(ctx, i)
			return &abortedError{err: err}
		}
	}
	return nil
}

// compensate undoes steps [0, failed) in reverse. It runs on a context that
// survives the caller's cancellation so a timed-out saga still cleans up.
func (s *saga) compensate(ctx context.Context, failed int) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	for j := failed - 1; j >= 0; j-- {
		step := s.steps[j]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(cctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("step", step.name),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("Compensated saga step", zap.String("step", step.name))
	}
}
