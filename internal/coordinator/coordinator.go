// Package coordinator sequences multi-step ledger operations: validate
// locally, submit, wait for the confirmed receipt, then reconcile the
// off-chain mirrors from the authoritative outcome.
//
// Operations for the same account are serialized so allowance and balance
// reads cannot interleave with a concurrent submission from the same signer.
// A caller that gives up does not retract anything: confirmation waits run on
// a context detached from the caller, and reconciliation happens regardless.
// Rejected submissions are never retried automatically.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"greenchain/internal/amm/poolregistry"
	"greenchain/internal/coordinator/metrics"
	"greenchain/internal/ledger"
	lifecyclesvc "greenchain/internal/lifecycle/service"
	rolesvc "greenchain/internal/roles/service"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// Event is one confirmed (or rejected) operation for downstream consumers.
type Event struct {
	Type    string    `json:"type"`
	Account string    `json:"account"`
	Subject string    `json:"subject"`
	Amount  string    `json:"amount,omitempty"`
	Tx      string    `json:"tx"`
	Result  string    `json:"result"`
	At      time.Time `json:"at"`
}

// EventSink receives operation events. Publishing is fail-open: a sink error
// never fails the operation that produced the event.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// Coordinator drives every state-changing operation end to end.
type Coordinator struct {
	clients   ledger.Clients
	registry  *lifecyclesvc.Registry
	authority *rolesvc.Authority
	pools     *poolregistry.Registry

	logger  *slog.Logger
	metrics *metrics.Metrics
	events  EventSink
	tracer  trace.Tracer
	now     func() time.Time

	pending *pendingSet

	locksMu sync.Mutex
	locks   map[domain.Address]*sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics attaches coordinator metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithEvents attaches an operation event sink.
func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New constructs the coordinator.
func New(clients ledger.Clients, registry *lifecyclesvc.Registry, authority *rolesvc.Authority,
	pools *poolregistry.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		clients:   clients,
		registry:  registry,
		authority: authority,
		pools:     pools,
		logger:    slog.Default(),
		tracer:    otel.Tracer("greenchain/coordinator"),
		now:       time.Now,
		pending:   newPendingSet(),
		locks:     make(map[domain.Address]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Pending lists in-flight operations, optionally filtered by account.
func (c *Coordinator) Pending(account domain.Address) []*Pending {
	return c.pending.snapshot(account)
}

// lockAccount serializes the validate-and-submit window for one signing
// account. The lock is released once the submission is in flight; holding it
// through a confirmation wait would block the account for minutes.
func (c *Coordinator) lockAccount(account domain.Address) *accountLock {
	c.locksMu.Lock()
	lock, ok := c.locks[account]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[account] = lock
	}
	c.locksMu.Unlock()
	lock.Lock()
	return &accountLock{mu: lock}
}

// accountLock guards one account's submit window. release is idempotent so
// operations can release early after submitting and still defer it for error
// paths.
type accountLock struct {
	mu       *sync.Mutex
	released bool
}

func (l *accountLock) release() {
	if l.released {
		return
	}
	l.released = true
	l.mu.Unlock()
}

func (c *Coordinator) publish(ctx context.Context, event Event) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, event)
}

// confirm waits for the receipt on a context detached from the caller, so an
// abandoned request still reconciles, then translates a revert into
// CodeRejected.
func (c *Coordinator) confirm(ctx context.Context, pending *Pending) (*ledger.Receipt, error) {
	c.metrics.TrackInFlight(1)
	defer c.metrics.TrackInFlight(-1)
	start := c.now()

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmTimeout)
	defer cancel()

	receipt, err := c.clients.Backend.WaitConfirmed(waitCtx, pending.Tx)
	if err != nil {
		c.metrics.RecordOutcome(string(pending.Kind), "failed")
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "await confirmation")
	}
	c.metrics.ObserveConfirmLatency(string(pending.Kind), c.now().Sub(start))

	if receipt.Status == ledger.StatusReverted {
		c.metrics.RecordOutcome(string(pending.Kind), "rejected")
		c.logger.WarnContext(ctx, "ledger rejected operation",
			"kind", pending.Kind, "tx", pending.Tx, "reason", receipt.Reason)
		c.publish(ctx, Event{
			Type:    string(pending.Kind),
			Account: string(pending.Account),
			Subject: pending.Subject,
			Tx:      string(pending.Tx),
			Result:  "rejected",
			At:      c.now(),
		})
		return nil, dErrors.Newf(dErrors.CodeRejected, "ledger rejected %s: %s", pending.Kind, receipt.Reason)
	}

	c.metrics.RecordOutcome(string(pending.Kind), "confirmed")
	return receipt, nil
}

// confirmTimeout bounds how long a detached confirmation wait may run.
const confirmTimeout = 5 * time.Minute

func (c *Coordinator) confirmedEvent(pending *Pending) Event {
	event := Event{
		Type:    string(pending.Kind),
		Account: string(pending.Account),
		Subject: pending.Subject,
		Tx:      string(pending.Tx),
		Result:  "confirmed",
		At:      c.now(),
	}
	if pending.Amount != nil {
		event.Amount = pending.Amount.Dec()
	}
	return event
}

func (c *Coordinator) startSpan(ctx context.Context, name string, account domain.Address) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("account", string(account)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
