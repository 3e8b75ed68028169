// Package agent implements the reverse WebSocket command client: the
// connection lifecycle state machine (dial, handshake, request/reply
// sequencing, keep-alive pings, timeouts, graceful close, live
// reconfiguration, shutdown) and the thread-safe control surface that
// drives it.
package agent

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/QuadTriangle/wsagent/internal/config"
	"github.com/QuadTriangle/wsagent/internal/loop"
	"github.com/QuadTriangle/wsagent/internal/value"
	"github.com/gorilla/websocket"
)

const (
	pingPayload = "ping"

	closeNormal         = websocket.CloseNormalClosure   // 1000
	closeGoingAway      = websocket.CloseGoingAway       // 1001
	closeServiceRestart = websocket.CloseServiceRestart  // 1012
)

// Agent drives one logical reverse-WebSocket connection. Exactly one
// instance per agent; construct with New, call Initialize once, then
// Run (which blocks until shutdown completes).
type Agent struct {
	store   *config.Store
	loop    *loop.Loop
	handler Handler

	stateMu sync.Mutex
	state   State

	// Everything below is loop-exclusive: only ever read or written
	// from a closure running on the loop goroutine.
	conn                *Conn
	generation          uint64
	reconnectAfterReply bool
	shuttingDown        bool
	exitCallback        func()
	logPrefix           string
	logger              *log.Logger
}

// New constructs an Agent from a JSON configuration object (see
// registerSchema for recognized keys) and a message handler. Fails with
// an error if the configuration does not validate — most commonly a
// missing "url".
func New(initial value.Value, handler Handler) (*Agent, error) {
	store := config.NewStore()
	if err := registerSchema(store); err != nil {
		return nil, err
	}

	ok, errs := store.Update(initial)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: %s", joinErrors(errs))
	}

	a := &Agent{
		store:   store,
		loop:    loop.New(),
		handler: handler,
		state:   UNINITIALIZED,
	}
	a.refreshLogger()
	return a, nil
}

func registerSchema(s *config.Store) error {
	type key struct {
		name     string
		typ      config.Type
		required bool
		def      config.DefaultProducer
	}
	keys := []key{
		{"url", config.STRING, true, nil},
		{"log_prefix", config.STRING, false, config.StaticDefault(value.String(""))},
		{"proxy_url", config.STRING, false, nil},
		{"proxy_username", config.STRING, false, nil},
		{"proxy_password", config.STRING, false, nil},
		{"proxy_timeout", config.FLOAT, false, config.StaticDefault(value.Number(30.0))},
		{"connect_timeout", config.FLOAT, false, config.StaticDefault(value.Number(30.0))},
		{"ping_interval", config.FLOAT, false, config.StaticDefault(value.Number(30.0))},
		{"ping_timeout", config.FLOAT, false, config.StaticDefault(value.Number(30.0))},
		{"close_timeout", config.FLOAT, false, config.StaticDefault(value.Number(50.0))},
		{"reconnect_timeout", config.FLOAT, false, config.StaticDefault(value.Number(5.0))},
	}
	for _, k := range keys {
		if err := s.RegisterKey(k.name, k.typ, k.required, k.def); err != nil {
			return err
		}
	}
	return nil
}

func joinErrors(errs []config.Error) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e.FullMessage()
	}
	return out
}

// State returns the current state. Thread-safe; this is the only field
// readable from outside the loop goroutine.
func (a *Agent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// Post runs fn on the loop goroutine. Exposed so a Handler finishing
// asynchronous work on another goroutine can hand control back to the
// agent before calling DoneReplying.
func (a *Agent) Post(fn func()) { a.loop.Post(fn) }

func (a *Agent) refreshLogger() {
	prefix, _ := a.store.Get("log_prefix").AsString()
	a.logPrefix = prefix
	a.logger = log.New(os.Stderr, prefix, log.LstdFlags)
}

func durationFromSeconds(v value.Value) time.Duration {
	f, ok := v.AsFloat()
	if !ok || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func (a *Agent) configDuration(key string) time.Duration {
	return durationFromSeconds(a.store.Get(key))
}

// isCurrent reports whether c is still the connection the agent owns;
// callbacks referencing a stale connection are dropped silently.
func (a *Agent) isCurrent(c *Conn) bool {
	return a.conn != nil && c != nil && a.conn.generation == c.generation
}

// Initialize must be called exactly once, before Run, from the
// goroutine that will call Run. It arms the first dial attempt.
func (a *Agent) Initialize() {
	a.setState(NOT_CONNECTED)
	a.loop.Post(a.startConnect)
}

// Run blocks until the agent shuts down.
func (a *Agent) Run() {
	a.loop.Run()
	a.setState(SHUT_DOWN)
	if a.exitCallback != nil {
		a.exitCallback()
	}
}

// ---- dialing ----

func (a *Agent) buildDialer() *websocket.Dialer {
	d := &websocket.Dialer{
		HandshakeTimeout: a.configDuration("connect_timeout"),
	}

	proxyURLStr, _ := a.store.Get("proxy_url").AsString()
	if proxyURLStr != "" {
		if u, err := url.Parse(proxyURLStr); err == nil {
			user, _ := a.store.Get("proxy_username").AsString()
			pass, _ := a.store.Get("proxy_password").AsString()
			if user != "" || pass != "" {
				u.User = url.UserPassword(user, pass)
			}
			d.Proxy = http.ProxyURL(u)
		} else {
			a.logger.Printf("error parsing proxy_url %q: %v", proxyURLStr, err)
		}
	}

	return d
}

func (a *Agent) startConnect() {
	a.setState(CONNECTING)

	urlStr, _ := a.store.Get("url").AsString()
	dialer := a.buildDialer()
	attemptGeneration := a.generation + 1

	go func() {
		ws, _, err := dialer.Dial(urlStr, nil)
		a.loop.Post(func() {
			a.finishConnect(attemptGeneration, urlStr, ws, err)
		})
	}()
}

// finishConnect runs on the loop goroutine with the dial's outcome. If
// the agent has since moved past this attempt (another startConnect was
// issued, or shutdown started) the outcome is discarded.
func (a *Agent) finishConnect(attemptGeneration uint64, urlStr string, ws *websocket.Conn, err error) {
	if a.shuttingDown {
		if ws != nil {
			ws.Close()
		}
		a.loop.Stop()
		return
	}
	if attemptGeneration != a.generation+1 {
		if ws != nil {
			ws.Close()
		}
		return
	}

	if err != nil {
		a.logger.Printf("dial %s failed: %v", urlStr, err)
		a.setState(NOT_CONNECTED)
		a.armReconnectTimer()
		return
	}

	a.generation = attemptGeneration
	c := newConn(ws, a.generation)
	a.conn = c

	ws.SetPongHandler(func(string) error {
		a.loop.Post(func() { a.onPong(c) })
		return nil
	})

	a.logger.Printf("connected to %s (conn %s)", urlStr, c.ID())
	a.setState(WAITING_FOR_REQUEST)
	a.armPingTimer()
	go a.readPump(c)
}

func (a *Agent) armReconnectTimer() {
	a.loop.ArmTimer(a.configDuration("reconnect_timeout"), a.startConnect)
}

func (a *Agent) armPingTimer() {
	a.loop.ArmTimer(a.configDuration("ping_interval"), a.sendPing)
}

// ---- ping/pong ----

func (a *Agent) sendPing() {
	if a.conn == nil {
		return
	}
	c := a.conn
	deadline := time.Now().Add(a.configDuration("ping_timeout"))
	if err := c.ws.WriteControl(websocket.PingMessage, []byte(pingPayload), deadline); err != nil {
		a.logger.Printf("error sending ping: %v", err)
		a.closeConnection(closeNormal, "error sending ping")
		return
	}
	a.loop.ArmTimer(a.configDuration("ping_timeout"), func() { a.onPongTimeout(c) })
}

func (a *Agent) onPong(c *Conn) {
	if !a.isCurrent(c) {
		return
	}
	a.armPingTimer()
}

func (a *Agent) onPongTimeout(c *Conn) {
	if !a.isCurrent(c) {
		return
	}
	if a.State() == REPLYING {
		// Reading is paused while replying, so no pong could have
		// been observed anyway; ignore and let done_replying resume
		// the normal ping cadence.
		return
	}
	a.closeConnection(closeNormal, "reconnecting because of pong timeout")
}

// ---- request/reply ----

// readPump is the single goroutine allowed to call ReadMessage on c's
// socket, per gorilla/websocket's concurrency contract. It posts each
// frame to the loop and then blocks until told to read the next one —
// this is how reading is "paused" while REPLYING.
func (a *Agent) readPump(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			a.loop.Post(func() { a.onConnClosed(c, err) })
			return
		}

		msg := data
		a.loop.Post(func() { a.onFrame(c, msg) })

		<-c.resume
	}
}

func (a *Agent) onFrame(c *Conn, data []byte) {
	if !a.isCurrent(c) {
		return
	}

	switch a.State() {
	case WAITING_FOR_REQUEST:
		a.loop.CancelTimer() // no ping while we owe a reply
		a.setState(REPLYING)
		if a.handler(a, c, data) {
			a.completeReply(c)
		}
		// else: handler will call DoneReplying asynchronously.
	case CLOSING:
		// Ignore incoming messages while closing, but keep the read
		// pump reading so it still observes the end of the connection.
		c.allowNextRead()
	default:
		panic(fmt.Sprintf("agent: onFrame invoked in unexpected state %s", a.State()))
	}
}

// DoneReplying must be called from the event-loop thread — typically
// from inside a closure passed to (*Agent).Post — once the handler has
// finished producing its reply for conn. A stale conn (superseded by a
// reconnect) is dropped silently, as is a reply that finishes after a
// close of conn has begun (state CLOSING).
func (a *Agent) DoneReplying(conn *Conn) {
	if !a.isCurrent(conn) {
		return
	}
	if a.State() == CLOSING {
		return
	}
	if a.State() != REPLYING {
		panic(fmt.Sprintf("agent: DoneReplying called outside REPLYING (state=%s)", a.State()))
	}
	a.completeReply(conn)
}

func (a *Agent) completeReply(c *Conn) {
	a.setState(WAITING_FOR_REQUEST)
	a.armPingTimer()
	c.allowNextRead()

	if a.reconnectAfterReply {
		a.reconnectAfterReply = false
		a.internalReconnect()
	}
}

// ---- close / reconnect ----

func (a *Agent) onConnClosed(c *Conn, readErr error) {
	if !a.isCurrent(c) {
		return
	}

	a.logger.Printf("connection %s closed: %v", c.ID(), readErr)
	a.setState(NOT_CONNECTED)
	a.reconnectAfterReply = false
	a.conn = nil

	if a.shuttingDown {
		a.loop.CancelTimer()
		a.loop.Stop()
		return
	}
	a.armReconnectTimer()
}

// closeConnection initiates a close of the current connection with the
// given code/reason. The actual NOT_CONNECTED transition happens when
// the read pump observes the resulting error from ReadMessage.
func (a *Agent) closeConnection(code int, reason string) {
	if a.conn == nil {
		return
	}
	a.setState(CLOSING)
	a.reconnectAfterReply = false
	a.loop.CancelTimer()

	c := a.conn
	// A read pump parked between frames (close started while REPLYING)
	// must go back to ReadMessage to observe the end of the connection.
	c.allowNextRead()
	deadline := time.Now().Add(a.configDuration("close_timeout"))
	if err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		// Treat a failing close call as an immediate disconnect.
		c.close()
		return
	}

	// Force the connection down if the peer never completes the
	// closing handshake within close_timeout.
	a.loop.ArmTimer(a.configDuration("close_timeout"), func() {
		if a.isCurrent(c) {
			c.close()
		}
	})
}

// internalReconnect implements the reconfigure-trigger table in
// spec.md §4.D: no-op when not connected, a graceful close when a
// connection exists, and a deferred flag when a reply is in flight.
func (a *Agent) internalReconnect() {
	switch a.State() {
	case NOT_CONNECTED:
		// Nothing to close; the next reconnect timer fire (or the one
		// about to be armed) will pick up the new config.
	case CONNECTING:
		// No established socket to close yet, and nothing is done here:
		// the in-flight dial keeps its old url/proxy_url. If it fails,
		// the retry reads the new config. If it succeeds, the agent
		// stays on that connection until it next closes; the change
		// does not force a reconnect in this state.
	case WAITING_FOR_REQUEST:
		a.closeConnection(closeServiceRestart, "reconnecting because of configuration change")
	case REPLYING:
		a.reconnectAfterReply = true
	case CLOSING:
		// Already closing; nothing more to do.
	default:
		panic(fmt.Sprintf("agent: internalReconnect in unexpected state %s", a.State()))
	}
}
