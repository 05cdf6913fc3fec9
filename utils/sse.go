// utils/sse.go
package utils

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"rolewarden/common"
)

// SSEStream owns one event-stream response. Every frame and comment goes out
// under its lock, so writers on different goroutines never splice each other
// mid-frame.
type SSEStream struct {
	mu sync.Mutex
	w  http.ResponseWriter
	fl http.Flusher
}

func NewSSEStream(w http.ResponseWriter, fl http.Flusher) *SSEStream {
	return &SSEStream{w: w, fl: fl}
}

// Comment emits an SSE comment line. Clients ignore it; it only keeps the
// connection warm across proxies.
func (s *SSEStream) Comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, ": %s\n\n", text)
	if s.fl != nil {
		s.fl.Flush()
	}
}

func (s *SSEStream) event(name, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	if s.fl != nil {
		s.fl.Flush()
	}
}

// SSELineWriter frames streamed command output as events on a shared stream,
// one event per line. Partial lines stay buffered until their newline
// arrives.
type SSELineWriter struct {
	s    *SSEStream
	name string // event name, "stdout" or "stderr"
	mu   sync.Mutex
	buf  []byte
}

func NewSSELineWriter(s *SSEStream, name string) *SSELineWriter {
	return &SSELineWriter{s: s, name: name}
}

// Write implements io.Writer over the event stream.
func (l *SSELineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		line := string(l.buf[:i])
		l.buf = l.buf[i+1:]
		l.s.event(l.name, line)
	}
	return len(p), nil
}

// WriteSSEHeader sets the event-stream headers and returns the flusher.
func WriteSSEHeader(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx)
	w.Header().Set("X-Accel-Buffering", "no")
	fl, ok := w.(http.Flusher)
	return fl, ok
}

// WSUpgrader accepts same-origin requests, the configured UI origin, and
// localhost during development.
var WSUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		if ui := strings.TrimSpace(common.Env("ROLEWARDEN_UI_ORIGIN", "")); ui != "" && origin == ui {
			return true
		}
		return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
	},
}
