package httpforward

// RequestHook intercepts a forwarded request before it is sent to the
// local target, and its response before it is sent back over the
// connection.
type RequestHook interface {
	BeforeRequest(req Request) Request
	AfterRequest(req Request, resp Response) Response
}

// ConnectionHook observes agent connection lifecycle events, for
// hooks that want to log or meter activity rather than touch traffic.
type ConnectionHook interface {
	OnConnect(connID string)
	OnDisconnect(connID string, err error)
}

// NoOpRequestHook is embedded by hooks that only implement one method.
type NoOpRequestHook struct{}

func (NoOpRequestHook) BeforeRequest(req Request) Request              { return req }
func (NoOpRequestHook) AfterRequest(_ Request, resp Response) Response { return resp }

// NoOpConnectionHook is embedded by hooks that only implement one method.
type NoOpConnectionHook struct{}

func (NoOpConnectionHook) OnConnect(string)           {}
func (NoOpConnectionHook) OnDisconnect(string, error) {}

// Pipeline runs registered hooks in registration order. The zero value
// is ready to use.
type Pipeline struct {
	reqHooks  []RequestHook
	connHooks []ConnectionHook
}

func (p *Pipeline) AddRequestHook(h RequestHook)       { p.reqHooks = append(p.reqHooks, h) }
func (p *Pipeline) AddConnectionHook(h ConnectionHook) { p.connHooks = append(p.connHooks, h) }

func (p *Pipeline) RunBeforeRequest(req Request) Request {
	for _, h := range p.reqHooks {
		req = h.BeforeRequest(req)
	}
	return req
}

func (p *Pipeline) RunAfterRequest(req Request, resp Response) Response {
	for _, h := range p.reqHooks {
		resp = h.AfterRequest(req, resp)
	}
	return resp
}

func (p *Pipeline) NotifyConnect(connID string) {
	for _, h := range p.connHooks {
		h.OnConnect(connID)
	}
}

func (p *Pipeline) NotifyDisconnect(connID string, err error) {
	for _, h := range p.connHooks {
		h.OnDisconnect(connID, err)
	}
}
