// Package receiver runs the single-consumer loop that feeds transport
// messages into the report dispatcher.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deploy-reconciler/pkg/journal"
	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/reconcile"
	"deploy-reconciler/pkg/transport"
)

// State of a Receiver.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// TransportError ends Run when the transport fails for any reason other
// than cancellation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Recorder persists what happened to each delivery. *journal.Journal
// satisfies it.
type Recorder interface {
	Record(ctx context.Context, e model.JournalEntry) error
	Seen(ctx context.Context, digest string) (bool, error)
}

type Handler interface {
	Handle(ctx context.Context, body []byte) (model.Report, reconcile.Outcome, error)
}

type Receiver struct {
	tr      transport.Transport
	handler Handler
	rec     Recorder
	log     *zap.Logger
	state   atomic.Int32
}

// New builds a receiver; rec may be nil.
func New(tr transport.Transport, h Handler, rec Recorder, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{tr: tr, handler: h, rec: rec, log: log}
}

func (r *Receiver) State() State { return State(r.state.Load()) }

// Run consumes reports one at a time until ctx ends or the transport fails.
// Cancellation returns nil; a transport failure returns *TransportError.
// The transport is closed on return.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return errors.New("receiver already running")
	}
	defer r.state.Store(int32(Stopped))
	defer func() {
		if err := r.tr.Close(); err != nil {
			r.log.Warn("transport close failed", zap.Error(err))
		}
	}()

	r.log.Info("receiver started")
	for {
		msg, err := r.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("receiver stopped")
				return nil
			}
			r.log.Error("transport receive failed", zap.Error(err))
			return &TransportError{Err: err}
		}
		// A dequeued report always runs to completion.
		r.process(context.WithoutCancel(ctx), msg)
	}
}

func (r *Receiver) process(ctx context.Context, msg transport.Message) {
	log := r.log.With(zap.String("delivery", msg.ID), zap.String("source", msg.Source))
	entry := model.JournalEntry{
		DeliveryID: msg.ID,
		Digest:     journal.Digest(msg.Body),
	}
	if entry.DeliveryID == "" {
		entry.DeliveryID = uuid.NewString()
	}
	if r.rec != nil {
		dup, err := r.rec.Seen(ctx, entry.Digest)
		if err != nil {
			log.Warn("journal lookup failed", zap.Error(err))
		}
		entry.Duplicate = dup
	}

	rep, out, err := r.handle(ctx, msg.Body)
	entry.TaskUUID = rep.TaskUUID
	entry.Kind = rep.Kind
	switch {
	case err == nil:
		entry.Outcome = model.OutcomeApplied
		entry.Detail = out.TaskStatus
		log.Debug("report applied",
			zap.String("task_uuid", out.TaskUUID),
			zap.String("kind", string(out.Kind)),
			zap.String("status", out.TaskStatus),
			zap.Int("nodes_updated", out.NodesUpdated),
			zap.Int("nodes_skipped", out.NodesSkipped))
	case reconcile.IsRejected(err):
		entry.Outcome = model.OutcomeRejected
		entry.Detail = err.Error()
	default:
		entry.Outcome = model.OutcomeFailed
		entry.Detail = err.Error()
		log.Error("report processing failed", zap.String("task_uuid", rep.TaskUUID), zap.Error(err))
	}

	if r.rec != nil {
		entry.At = time.Now()
		if err := r.rec.Record(ctx, entry); err != nil {
			log.Warn("journal record failed", zap.Error(err))
		}
	}
	if err := r.tr.Ack(ctx, msg); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}

func (r *Receiver) handle(ctx context.Context, body []byte) (rep model.Report, out reconcile.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("report handler panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler.Handle(ctx, body)
}
