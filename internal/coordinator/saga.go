package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
)

// Policy decides what the orchestrator does when a step fails.
type Policy int

const (
	// Abort stops the saga. Steps before it have nothing to undo.
	Abort Policy = iota
	// HardFail stops the saga and compensates completed steps, newest first.
	HardFail
	// RecordInconsistency stops the saga without compensating and marks it
	// INCONSISTENT. Used after an irreversible step.
	RecordInconsistency
	// BestEffort logs the failure and runs the next step.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case Abort:
		return "abort"
	case HardFail:
		return "hard_fail"
	case RecordInconsistency:
		return "record_inconsistency"
	case BestEffort:
		return "best_effort"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ErrHalt ends a saga early and successfully. Steps after the one that
// returned it are not run.
var ErrHalt = errors.New("coordinator: halt")

// Step is a single unit of work in a saga.
type Step interface {
	Name() string
	Policy() Policy
	Execute(ctx context.Context) error
	// Compensate undoes Execute. It is only called for HardFail rollbacks.
	Compensate(ctx context.Context) error
}

// StepError reports the step that stopped a saga.
type StepError struct {
	Step   string
	Policy Policy
	Err    error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Orchestrator runs one saga execution.
type Orchestrator struct {
	sagaID string
	steps  []Step
	log    sagalog.Repository
	logger *slog.Logger
	tracer trace.Tracer
}

func NewOrchestrator(sagaID string, steps []Step, log sagalog.Repository, logger *slog.Logger) *Orchestrator {
	if log == nil {
		log = sagalog.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sagaID: sagaID,
		steps:  steps,
		log:    log,
		logger: logger.With("saga_id", sagaID),
		tracer: otel.Tracer("github.com/jcmexdev/storefront-sagas/internal/coordinator"),
	}
}

// Start runs the steps in order and records every transition in the saga
// log. A failing step is handled according to its Policy; the returned
// error is a *StepError for the step that stopped the saga.
func (o *Orchestrator) Start(ctx context.Context, payload string) error {
	o.save(ctx, sagalog.StatusStarted, "", payload, nil)

	var (
		done []Step
		errs []string
		last string
	)
	for _, step := range o.steps {
		last = step.Name()
		err := o.execute(ctx, step)
		if err == nil {
			done = append(done, step)
			o.save(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
			continue
		}
		if errors.Is(err, ErrHalt) {
			o.logger.InfoContext(ctx, "saga halted", "step", step.Name())
			o.save(ctx, sagalog.StatusCompleted, step.Name(), "", errs)
			return nil
		}

		errs = append(errs, fmt.Sprintf("step %s failed: %v", step.Name(), err))
		switch step.Policy() {
		case BestEffort:
			o.logger.WarnContext(ctx, "saga step failed, continuing", "step", step.Name(), "error", err)
			continue
		case RecordInconsistency:
			o.logger.ErrorContext(ctx, "saga stopped after an irreversible step", "step", step.Name(), "error", err)
			o.save(ctx, sagalog.StatusInconsistent, step.Name(), "", errs)
			return &StepError{Step: step.Name(), Policy: RecordInconsistency, Err: err}
		case HardFail:
			o.logger.WarnContext(ctx, "saga step failed, starting rollback", "step", step.Name(), "error", err)
			o.save(ctx, sagalog.StatusCompensating, step.Name(), "", errs)
			errs = o.rollback(ctx, done, errs)
		default:
			o.logger.InfoContext(ctx, "saga aborted", "step", step.Name(), "error", err)
		}
		o.save(ctx, sagalog.StatusFailed, step.Name(), "", errs)
		return &StepError{Step: step.Name(), Policy: step.Policy(), Err: err}
	}

	o.save(ctx, sagalog.StatusCompleted, last, "", errs)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, "saga."+step.Name(), trace.WithAttributes(
		attribute.String("saga.id", o.sagaID),
		attribute.String("saga.policy", step.Policy().String()),
	))
	defer span.End()

	err := step.Execute(ctx)
	if err != nil && !errors.Is(err, ErrHalt) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// rollback compensates steps newest first. It keeps going when a
// compensation fails and returns errs with those failures appended.
// Compensation ignores cancellation of ctx.
func (o *Orchestrator) rollback(ctx context.Context, steps []Step, errs []string) []string {
	ctx = context.WithoutCancel(ctx)
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		o.logger.InfoContext(ctx, "compensating step", "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			o.logger.ErrorContext(ctx, "compensation failed", "step", step.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return errs
}

func (o *Orchestrator) save(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	ctx = context.WithoutCancel(ctx)
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.log.Save(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "saga log write failed", "status", string(status), "step", step, "error", err)
	}
}
