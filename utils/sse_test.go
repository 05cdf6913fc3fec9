package utils

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSSELineWriterBuffersPartialLines(t *testing.T) {
	rec := httptest.NewRecorder()
	out := NewSSELineWriter(NewSSEStream(rec, nil), "stdout")

	_, _ = out.Write([]byte("hel"))
	if rec.Body.Len() != 0 {
		t.Fatalf("partial line must stay buffered, got %q", rec.Body.String())
	}
	_, _ = out.Write([]byte("lo\nworld\n"))
	want := "event: stdout\ndata: hello\n\nevent: stdout\ndata: world\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("framed output = %q, want %q", got, want)
	}
}

func TestSSEStreamComment(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSSEStream(rec, nil).Comment("keepalive")
	if got := rec.Body.String(); got != ": keepalive\n\n" {
		t.Fatalf("comment = %q", got)
	}
}

// Both output channels and the keepalive share one response. Hammering them
// from three goroutines must still produce only whole frames, never a
// comment spliced into the middle of an event.
func TestSSEStreamConcurrentWritersStayFramed(t *testing.T) {
	rec := httptest.NewRecorder()
	fl, ok := WriteSSEHeader(rec)
	if !ok {
		t.Fatalf("recorder must support flushing")
	}
	es := NewSSEStream(rec, fl)
	stdout := NewSSELineWriter(es, "stdout")
	stderr := NewSSELineWriter(es, "stderr")

	const lines = 200
	const ticks = 25
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < lines; i++ {
			fmt.Fprintf(stdout, "out %d\n", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < lines; i++ {
			fmt.Fprintf(stderr, "err %d\n", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < ticks; i++ {
			es.Comment("keepalive")
		}
	}()
	wg.Wait()

	var events, comments int
	body := strings.TrimSuffix(rec.Body.String(), "\n\n")
	for _, block := range strings.Split(body, "\n\n") {
		switch {
		case block == ": keepalive":
			comments++
		case strings.HasPrefix(block, "event: stdout\ndata: out "),
			strings.HasPrefix(block, "event: stderr\ndata: err "):
			events++
		default:
			t.Fatalf("malformed block %q", block)
		}
	}
	if events != 2*lines || comments != ticks {
		t.Fatalf("got %d events and %d comments, want %d and %d", events, comments, 2*lines, ticks)
	}
}
