package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"deploy-reconciler/pkg/model"
)

// HandlerFunc applies one kind of report.
type HandlerFunc func(ctx context.Context, rep model.Report) (Outcome, error)

// Dispatcher routes reports to the handler registered for their kind.
// Register is meant for setup; the dispatcher is not safe for concurrent registration.
type Dispatcher struct {
	handlers map[model.ReportKind]HandlerFunc
	log      *zap.Logger
}

// NewDispatcher returns a dispatcher serving deploy and verify-networks reports.
func NewDispatcher(r *Reconciler, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{handlers: map[model.ReportKind]HandlerFunc{}, log: log}
	d.Register(model.KindDeploy, r.ApplyDeploy)
	d.Register(model.KindVerifyNetworks, r.ApplyVerifyNetworks)
	return d
}

func (d *Dispatcher) Register(kind model.ReportKind, fn HandlerFunc) {
	d.handlers[kind] = fn
}

// Kinds lists registered kinds in sorted order.
func (d *Dispatcher) Kinds() []model.ReportKind {
	out := make([]model.ReportKind, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs the handler for rep.Kind. Unknown kinds change nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, rep model.Report) (Outcome, error) {
	fn, ok := d.handlers[rep.Kind]
	if !ok {
		d.log.Warn("report of unknown kind dropped",
			zap.String("kind", string(rep.Kind)), zap.String("task_uuid", rep.TaskUUID))
		return Outcome{TaskUUID: rep.TaskUUID, Kind: rep.Kind}, fmt.Errorf("%w: %q", ErrUnknownKind, rep.Kind)
	}
	return fn(ctx, rep)
}

// Handle decodes body and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) (model.Report, Outcome, error) {
	rep, err := DecodeReport(body)
	if err != nil {
		d.log.Warn("malformed report dropped", zap.Error(err))
		return rep, Outcome{TaskUUID: rep.TaskUUID, Kind: rep.Kind}, err
	}
	out, err := d.Dispatch(ctx, rep)
	return rep, out, err
}
