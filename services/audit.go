// services/audit.go
package services

import (
	"context"

	"rolewarden/utils"
)

// StepEvent describes one primitive invocation inside a run, in the order
// the engine issued it.
type StepEvent struct {
	Seq       int            `json:"seq"`
	Primitive string         `json:"primitive"`
	Args      map[string]any `json:"args,omitempty"`
	Changed   bool           `json:"changed"`
	Failed    bool           `json:"failed"`
	Message   string         `json:"msg,omitempty"`
}

// RunRecorder decorates a RolePrimitives so every call lands in the audit
// trail (sink) and, optionally, on a live listener (notify). The engine runs
// primitives sequentially, so the counter needs no locking.
type RunRecorder struct {
	next   RolePrimitives
	seq    int
	sink   func(ctx context.Context, e StepEvent)
	notify func(e StepEvent)
}

// NewRunRecorder wraps next. Either hook may be nil.
func NewRunRecorder(next RolePrimitives, sink func(ctx context.Context, e StepEvent), notify func(e StepEvent)) *RunRecorder {
	return &RunRecorder{next: next, sink: sink, notify: notify}
}

func (r *RunRecorder) record(ctx context.Context, primitive string, args map[string]any, res utils.Result) {
	r.seq++
	e := StepEvent{
		Seq:       r.seq,
		Primitive: primitive,
		Args:      args,
		Changed:   res.Changed,
		Failed:    res.Failed,
		Message:   res.Msg,
	}
	if r.sink != nil {
		r.sink(ctx, e)
	}
	if r.notify != nil {
		r.notify(e)
	}
}

func (r *RunRecorder) StatFile(ctx context.Context, path string) (bool, utils.Result) {
	exists, res := r.next.StatFile(ctx, path)
	r.record(ctx, "stat", map[string]any{"path": path, "exists": exists}, res)
	return exists, res
}

func (r *RunRecorder) EnsureFile(ctx context.Context, path, state string) utils.Result {
	res := r.next.EnsureFile(ctx, path, state)
	r.record(ctx, "file", map[string]any{"path": path, "state": state}, res)
	return res
}

func (r *RunRecorder) WriteCompose(ctx context.Context, data map[string]any, dest string) utils.Result {
	res := r.next.WriteCompose(ctx, data, dest)
	r.record(ctx, "template", map[string]any{"dest": dest, "services": len(data)}, res)
	return res
}

func (r *RunRecorder) ApplyContainers(ctx context.Context, composeFile, state string, force bool) utils.Result {
	res := r.next.ApplyContainers(ctx, composeFile, state, force)
	r.record(ctx, "containers", map[string]any{"file": composeFile, "state": state, "force": force}, res)
	return res
}

func (r *RunRecorder) ApplyImages(ctx context.Context, images []string, state string) utils.Result {
	res := r.next.ApplyImages(ctx, images, state)
	r.record(ctx, "images", map[string]any{"refs": images, "state": state}, res)
	return res
}
