// Package workflow drives booking, reschedule and cancellation runs through an
// explicit, persisted state machine.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/detailbook/detailbook/libs/otel"
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/parser"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
)

var tracer = otel.Tracer("github.com/detailbook/detailbook/services/booking-service/internal/workflow")

// DefaultLockTTL covers the longest expected run, retries included.
const DefaultLockTTL = 5 * time.Minute

type Store interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	CreateRun(ctx context.Context, r model.Run) error
	GetRun(ctx context.Context, runID string) (model.Run, error)
	// UpdateRun must not clear a cancel request recorded concurrently.
	UpdateRun(ctx context.Context, r model.Run) error
	// RequestRunCancel fails with model.ErrInvalidState for a terminal run.
	RequestRunCancel(ctx context.Context, tenantID, runID string) (model.Run, error)
	// ListStaleRuns returns non-terminal runs last updated before the cutoff.
	ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]model.Run, error)
	SaveStep(ctx context.Context, rec model.StepRecord) error
	ListSteps(ctx context.Context, runID string) ([]model.StepRecord, error)
	DeleteSteps(ctx context.Context, runID string) error
}

type Deps struct {
	Store        Store
	Parser       parser.Parser
	Availability *availability.Engine
	Clients      *clients.Service
	Bookings     *bookings.Manager
	Notifier     *notify.Service
	Threads      *threads.Service
	Locker       Locker
	Logger       *slog.Logger
	Policy       Policy
	LockTTL      time.Duration
}

type Engine struct {
	store        Store
	parser       parser.Parser
	availability *availability.Engine
	clients      *clients.Service
	bookings     *bookings.Manager
	notifier     *notify.Service
	threads      *threads.Service
	locker       Locker
	logger       *slog.Logger
	policy       Policy
	lockTTL      time.Duration
	now          func() time.Time
	plans        map[model.RunKind][]step
}

func NewEngine(d Deps) *Engine {
	if d.Locker == nil {
		d.Locker = NewMemoryLocker()
	}
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	if d.Parser == nil {
		d.Parser = parser.NewKeywordParser()
	}
	e := &Engine{
		store:        d.Store,
		parser:       d.Parser,
		availability: d.Availability,
		clients:      d.Clients,
		bookings:     d.Bookings,
		notifier:     d.Notifier,
		threads:      d.Threads,
		locker:       d.Locker,
		logger:       d.Logger,
		policy:       d.Policy.withDefaults(),
		lockTTL:      d.LockTTL,
		now:          time.Now,
	}
	e.plans = map[model.RunKind][]step{
		model.RunBooking:      e.bookingPlan(),
		model.RunReschedule:   e.reschedulePlan(),
		model.RunCancellation: e.cancellationPlan(),
	}
	return e
}

// runContext carries step outputs through one execution of a run.
type runContext struct {
	run          model.Run
	tenant       model.Tenant
	intent       parser.Intent
	client       model.Client
	availability availability.Result
	booking      model.Booking
	notified     notifyOutput
	confirmation string
}

// Outcome tells the engine whether to continue with the next step or to
// finish the run with a result.
type Outcome struct {
	result *model.RunResult
}

func Continue() Outcome { return Outcome{} }

func Finish(r model.RunResult) Outcome { return Outcome{result: &r} }

func (o Outcome) Finished() bool { return o.result != nil }

type step struct {
	name    string
	state   model.RunState
	skip    func(rc *runContext) bool
	exec    func(ctx context.Context, rc *runContext) (json.RawMessage, Outcome, error)
	restore func(rc *runContext, raw json.RawMessage) error
}

// newStep binds a typed step function. apply stores the output on the run
// context, both after execution and when a resumed run replays the record.
func newStep[T any](name string, state model.RunState, run func(context.Context, *runContext) (T, Outcome, error), apply func(*runContext, T)) step {
	return step{
		name:  name,
		state: state,
		exec: func(ctx context.Context, rc *runContext) (json.RawMessage, Outcome, error) {
			v, outcome, err := run(ctx, rc)
			if err != nil {
				return nil, Outcome{}, err
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, Outcome{}, fmt.Errorf("%w: encode %s output: %v", model.ErrValidation, name, err)
			}
			if apply != nil {
				apply(rc, v)
			}
			return raw, outcome, nil
		},
		restore: func(rc *runContext, raw json.RawMessage) error {
			if apply == nil || len(raw) == 0 {
				return nil
			}
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%w: decode %s output: %v", model.ErrValidation, name, err)
			}
			apply(rc, v)
			return nil
		},
	}
}

func (s step) skipWhen(fn func(rc *runContext) bool) step {
	s.skip = fn
	return s
}

// Execute drives the run to a terminal state. It returns nil once the run is
// terminal, and an error when the run was left resumable.
func (e *Engine) Execute(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.State.Terminal() {
		return nil
	}

	unlock, err := e.locker.Lock(ctx, runLockKey(runID), e.lockTTL)
	if err != nil {
		return fmt.Errorf("lock run %s: %w", runID, err)
	}
	defer unlock()

	run, err = e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	if run.State.Terminal() {
		return nil
	}

	ctx = otelx.ContextWithCarrier(ctx, run.Trace)
	ctx, span := tracer.Start(ctx, "workflow."+string(run.Kind), trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("tenant.id", run.TenantID),
		attribute.String("run.state", string(run.State)),
	))
	defer span.End()

	if err := e.drive(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (e *Engine) drive(ctx context.Context, run model.Run) error {
	rc := &runContext{run: run}
	plan, ok := e.plans[run.Kind]
	if !ok {
		return e.fail(ctx, rc, fmt.Errorf("%w: unknown run kind %q", model.ErrValidation, run.Kind))
	}

	tenant, err := e.store.GetTenant(ctx, run.TenantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return e.fail(ctx, rc, fmt.Errorf("load tenant: %w", err))
		}
		return fmt.Errorf("load tenant: %w", err)
	}
	rc.tenant = tenant

	records, err := e.store.ListSteps(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	done := make(map[string]model.StepRecord, len(records))
	for _, rec := range records {
		done[rec.Name] = rec
	}

	for _, st := range plan {
		if rec, ok := done[st.name]; ok {
			if err := st.restore(rc, rec.Output); err != nil {
				return e.fail(ctx, rc, err)
			}
			if rec.Result != nil {
				return e.complete(ctx, rc, *rec.Result)
			}
			continue
		}
		if st.skip != nil && st.skip(rc) {
			continue
		}

		current, err := e.store.GetRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("reload run: %w", err)
		}
		if current.CancelRequested {
			return e.cancel(ctx, rc)
		}

		if err := e.transition(ctx, rc, st.state); err != nil {
			if errors.Is(err, model.ErrInvalidState) {
				return e.fail(ctx, rc, err)
			}
			return err
		}

		rec, outcome, err := e.runStep(ctx, rc, st)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return e.fail(ctx, rc, fmt.Errorf("step %s: %w", st.name, err))
		}
		rec.Result = outcome.result
		if err := e.store.SaveStep(ctx, rec); err != nil {
			return fmt.Errorf("save step %s: %w", st.name, err)
		}
		if outcome.Finished() {
			return e.complete(ctx, rc, *outcome.result)
		}
	}
	return e.fail(ctx, rc, errors.New("run ended without a result"))
}

type stepOutput struct {
	raw     json.RawMessage
	outcome Outcome
}

func (e *Engine) runStep(ctx context.Context, rc *runContext, st step) (model.StepRecord, Outcome, error) {
	ctx, span := tracer.Start(ctx, "workflow.step."+st.name, trace.WithAttributes(attribute.String("run.id", rc.run.ID)))
	defer span.End()

	attempts := 0
	out, err := retry(ctx, e.policy, func() (stepOutput, error) {
		attempts++
		raw, outcome, err := st.exec(ctx, rc)
		return stepOutput{raw: raw, outcome: outcome}, err
	}, func(err error, wait time.Duration) {
		e.logger.Warn("workflow step retrying", "run_id", rc.run.ID, "step", st.name, "attempt", attempts, "wait", wait, "err", err)
	})
	span.SetAttributes(attribute.Int("step.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.StepRecord{}, Outcome{}, err
	}

	return model.StepRecord{
		RunID:       rc.run.ID,
		Name:        st.name,
		Output:      out.raw,
		Attempts:    attempts,
		CompletedAt: e.now().UTC(),
	}, out.outcome, nil
}

func (e *Engine) transition(ctx context.Context, rc *runContext, to model.RunState) error {
	if err := checkTransition(rc.run.State, to); err != nil {
		return err
	}
	from := rc.run.State
	rc.run.State = to
	rc.run.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateRun(ctx, rc.run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if from != to {
		e.logger.Debug("workflow transition", "run_id", rc.run.ID, "from", from, "to", to)
	}
	return nil
}
