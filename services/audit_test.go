package services

import (
	"context"
	"strings"
	"testing"

	"rolewarden/utils"
)

func TestRunRecorderNumbersStepsInOrder(t *testing.T) {
	f := &fakePrims{exists: true}
	var events []StepEvent
	rec := NewRunRecorder(f, func(_ context.Context, e StepEvent) {
		events = append(events, e)
	}, nil)

	args := nginxArgs()
	args["containers"] = "absent"
	out := Reconcile(context.Background(), rec, nil, args, false)
	if out.Failed {
		t.Fatalf("outcome = %+v", out)
	}

	wantPrims := []string{"stat", "containers", "file", "file"}
	if len(events) != len(wantPrims) {
		t.Fatalf("recorded %d events, want %d: %+v", len(events), len(wantPrims), events)
	}
	for i, e := range events {
		if e.Seq != i+1 {
			t.Errorf("event %d has seq %d", i, e.Seq)
		}
		if e.Primitive != wantPrims[i] {
			t.Errorf("event %d primitive = %q, want %q", i, e.Primitive, wantPrims[i])
		}
	}
	if got := events[0].Args["exists"]; got != true {
		t.Errorf("stat event should carry the answer, got %v", got)
	}
}

func TestRunRecorderNotifiesListener(t *testing.T) {
	f := &fakePrims{}
	var live []string
	rec := NewRunRecorder(f, nil, func(e StepEvent) {
		live = append(live, e.Primitive)
	})

	args := nginxArgs()
	args["containers"] = "present"
	if out := Reconcile(context.Background(), rec, nil, args, false); out.Failed {
		t.Fatalf("outcome = %+v", out)
	}
	if len(live) != 2 || live[0] != "file" || live[1] != "template" {
		t.Fatalf("live events = %v", live)
	}
}

func TestRunRecorderCarriesFailureAndStopsWithEngine(t *testing.T) {
	f := &fakePrims{}
	f.respond = func(call string) utils.Result {
		if strings.HasPrefix(call, "template") {
			return utils.Result{Failed: true, Msg: "read-only file system"}
		}
		return utils.Result{Changed: true}
	}
	var events []StepEvent
	rec := NewRunRecorder(f, func(_ context.Context, e StepEvent) {
		events = append(events, e)
	}, nil)

	args := nginxArgs()
	args["containers"] = "started"
	out := Reconcile(context.Background(), rec, nil, args, false)
	if !out.Failed || out.Msg != "read-only file system" {
		t.Fatalf("outcome = %+v", out)
	}

	last := events[len(events)-1]
	if last.Primitive != "template" || !last.Failed || last.Message != "read-only file system" {
		t.Fatalf("failing step not recorded faithfully: %+v", last)
	}
	// Nothing may run after the failing primitive.
	if len(events) != 2 {
		t.Fatalf("expected exactly dir+template events, got %+v", events)
	}
}

func TestRunRecorderPassesResultsThrough(t *testing.T) {
	f := &fakePrims{}
	f.respond = func(call string) utils.Result {
		return utils.Result{Changed: true}
	}
	rec := NewRunRecorder(f, nil, nil)

	res := rec.EnsureFile(context.Background(), "/etc/docker-compose/nginx", utils.FileDirectory)
	if !res.Changed || res.Failed {
		t.Fatalf("decorator must not alter results, got %+v", res)
	}
}
