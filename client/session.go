package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
)

// How long Connect waits for the server's acknowledgement.
const CONNECT_TIMEOUT = 10 * time.Second

/*
One conversation with a service. The thread (conversation id) is fixed for
the session's life; every outstanding call within it gets a fresh sequence
number. Stateless by default: requests go to the service's shared queue and
any worker may answer. After Connect the session is pinned to the worker
that acknowledged, and requests go to that worker's private address until
Disconnect.
*/
type Session struct {
	client  *Client
	service string
	thread  string

	connected bool
	// Where requests are sent: the service queue, or the pinned worker
	// address while connected.
	remoteAddr string
	// Sender of the most recently absorbed envelope.
	lastFrom string

	lastTrace uint64

	// Outstanding calls by sequence number.
	requests map[uint64]*Request

	// Messages popped while demultiplexing, waiting for their own call's
	// next Recv.
	backlog []gosrf.Message
}

func newSession(c *Client, service string) *Session {
	ses := &Session{
		client:   c,
		service:  service,
		thread:   uuid.NewString(),
		requests: make(map[uint64]*Request),
	}
	ses.remoteAddr = ses.serviceAddr()
	return ses
}

func (s *Session) serviceAddr() string {
	return s.client.Address().ServicePeer(s.service)
}

func (s *Session) Service() string {
	return s.service
}

func (s *Session) Thread() string {
	return s.thread
}

func (s *Session) Connected() bool {
	return s.connected
}

func (s *Session) nextTrace() uint64 {
	s.lastTrace++
	return s.lastTrace
}

func (s *Session) sendMessage(msg gosrf.Message) error {
	tm := gosrf.NewTransportMessage(s.remoteAddr, s.client.Address().String(), s.thread, msg)

	if tm.XID = log.LogTrace(); tm.XID == "" {
		tm.XID = log.CreateLogTrace()
	}

	return s.client.bus.Send(tm)
}

/*
Issue a call. The request starts Unsent, moves to Sent once the envelope is
on the bus, and advances through the receiving states as responses arrive
via Recv.
*/
func (s *Session) Request(method string, params ...any) (*Request, error) {
	trace := s.nextTrace()

	req := &Request{
		session: s,
		trace:   trace,
		method:  method,
		state:   RequestUnsent,
	}
	s.requests[trace] = req

	if err := s.sendMessage(gosrf.NewRequestMessage(trace, gosrf.NewMethodCall(method, params...))); err != nil {
		// Nothing is on the wire; no response will ever match the entry.
		delete(s.requests, trace)
		return nil, err
	}
	req.state = RequestSent

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.OSRF_log(log.LOGLEVEL_DEBUG, "Sent request", method, "trace", trace, "thread", s.thread)
	}

	return req, nil
}

/*
Begin a stateful session: send a Connect and wait for the server's OK.
On success the session is pinned to the answering worker.
*/
func (s *Session) Connect() error {
	if s.connected {
		return nil
	}

	trace := s.nextTrace()

	// The acknowledgement is demultiplexed like any other call.
	req := &Request{session: s, trace: trace, state: RequestSent}
	s.requests[trace] = req
	defer delete(s.requests, trace)

	if err := s.sendMessage(gosrf.NewConnectMessage(trace)); err != nil {
		return err
	}

	if _, err := req.Recv(CONNECT_TIMEOUT); err != nil {
		return err
	}
	if !s.connected {
		return fmt.Errorf("connect to %s timed out", s.service)
	}
	return nil
}

// End a stateful session. The pinned worker is released; subsequent
// requests go back to the shared service queue.
func (s *Session) Disconnect() error {
	if !s.connected {
		return nil
	}

	err := s.sendMessage(gosrf.NewDisconnectMessage(s.nextTrace()))

	s.connected = false
	s.remoteAddr = s.serviceAddr()
	return err
}

/*
Drop the session from its client, disconnecting first if needed. Callers
that open sessions directly should call this once the conversation is
over; the client tracks sessions by thread and only Cleanup releases the
entry.
*/
func (s *Session) Cleanup() {
	if s.connected {
		if err := s.Disconnect(); err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "Disconnect during cleanup failed:", err.Error())
		}
	}
	s.client.removeSession(s.thread)
}

// Unload an envelope into the per-call backlog.
func (s *Session) absorbEnvelope(tm *gosrf.TransportMessage) {
	s.lastFrom = tm.From
	s.backlog = append(s.backlog, tm.Body...)
}

// Pop the backlogged message with the lowest sequence number for trace.
func (s *Session) popBacklog(trace uint64) (gosrf.Message, bool) {
	for i, msg := range s.backlog {
		if msg.ThreadTrace == trace {
			s.backlog = append(s.backlog[:i], s.backlog[i+1:]...)
			return msg, true
		}
	}
	return gosrf.Message{}, false
}
