package agent

// Handler is invoked exactly once per incoming frame, on the event-loop
// thread, with the agent, the connection it arrived on, and the raw
// message bytes. The message payload itself is opaque to the agent —
// the handler is a black box.
//
// Returning true means the handler already produced its reply
// synchronously; the agent immediately treats the reply as done and
// resumes reading. Returning false means the handler will reply
// asynchronously and must later call (*Agent).DoneReplying from the
// event-loop thread — typically from inside a closure passed to
// (*Agent).Post, after finishing work on another goroutine.
type Handler func(a *Agent, conn *Conn, message []byte) bool
