// utils/result.go
package utils

// Raw is the unnormalized outcome of one remote primitive: whatever the
// remote side reported, before the msg/stderr preference is applied.
type Raw struct {
	Changed bool
	Failed  bool
	Msg     string
	Stderr  string
}

// Result is the uniform outcome every primitive reports. Callers never look
// at a Raw directly; everything funnels through Normalize so the four
// structurally different primitives share one failure/change contract.
type Result struct {
	Changed bool   `json:"changed"`
	Failed  bool   `json:"failed"`
	Msg     string `json:"msg"`
}

// Normalize converts a raw primitive outcome into the uniform Result.
// Changed and Failed default to false; the message prefers an explicit
// msg and falls back to captured stderr, else stays empty.
func Normalize(r Raw) Result {
	msg := r.Msg
	if msg == "" {
		msg = r.Stderr
	}
	return Result{Changed: r.Changed, Failed: r.Failed, Msg: msg}
}

// Failure is a convenience for transport-level errors: the remote side never
// produced a result, so the error text becomes the failure message.
func Failure(msg string) Result {
	return Normalize(Raw{Failed: true, Msg: msg})
}
