/*
Package client implements the caller side of the RPC runtime: sessions,
per-call request state machines, and the demultiplexing of many concurrent
calls over one inbound queue.

A Client owns exactly one bus connection and must stay on one goroutine.
Concurrency comes from outstanding calls, not shared clients: one session
can have several requests in flight, each identified by its sequence number
within the session's conversation.
*/
package client

import (
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
	"github.com/gosrf/gosrf/log"
)

type Client struct {
	bus gosrf.Transport

	// Conversations with outstanding activity, by thread.
	sessions map[string]*Session

	// Envelopes received while waiting for a different conversation.
	backlog []*gosrf.TransportMessage
}

// Wrap an existing transport connection.
func NewClient(transport gosrf.Transport) *Client {
	return &Client{
		bus:      transport,
		sessions: make(map[string]*Session),
	}
}

// Open a bus connection and wrap it.
func Connect(conf *bus.Config) (*Client, error) {
	b, err := bus.Connect(conf)
	if err != nil {
		return nil, err
	}
	return NewClient(b), nil
}

func (c *Client) Address() *gosrf.BusAddress {
	return c.bus.Address()
}

// Begin a conversation with a service. Stateless until Connect is called
// on the session.
func (c *Client) Session(service string) *Session {
	ses := newSession(c, service)
	c.sessions[ses.thread] = ses
	return ses
}

/*
One-shot convenience: send a single request and return its first result,
discarding the rest of the stream. The session is cleaned up afterwards.
*/
func (c *Client) SendRecvOne(service, method string, timeout time.Duration, params ...any) (any, error) {
	ses := c.Session(service)
	defer ses.Cleanup()

	req, err := ses.Request(method, params...)
	if err != nil {
		return nil, err
	}

	return req.Recv(timeout)
}

/*
Pop the next envelope belonging to thread, consulting the backlog first.
Envelopes for other live conversations are backlogged instead of dropped;
envelopes for unknown conversations are logged and discarded.
*/
func (c *Client) recvSessionEnvelope(timeout time.Duration, thread string) (*gosrf.TransportMessage, error) {
	for i, tm := range c.backlog {
		if tm.Thread == thread {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			return tm, nil
		}
	}

	var timer *gosrf.Timer
	if timeout >= 0 {
		timer = gosrf.NewTimer(timeout)
	}

	for {
		wait := gosrf.WaitForever
		if timer != nil {
			wait = timer.Remaining()
		}

		tm, err := c.bus.Recv(wait, "")
		if err != nil {
			return nil, err
		}
		if tm == nil {
			return nil, nil
		}

		if tm.XID != "" {
			log.SetLogTrace(tm.XID)
		}

		if tm.Thread == thread {
			return tm, nil
		}

		if _, ok := c.sessions[tm.Thread]; ok {
			if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
				log.OSRF_log(log.LOGLEVEL_DEBUG, "Backlogging envelope for thread", tm.Thread)
			}
			c.backlog = append(c.backlog, tm)
		} else {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "Discarding envelope for unknown thread", tm.Thread)
		}

		if timer != nil && timer.Done() {
			return nil, nil
		}
	}
}

func (c *Client) removeSession(thread string) {
	delete(c.sessions, thread)
}

// Release the underlying bus connection.
func (c *Client) Close() error {
	return c.bus.Close()
}
