package server

import (
	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
)

/*
The callee side of one call: where a method handler streams results and
the worker reports protocol-level statuses. Bound to the caller's reply
address and conversation; one Session exists per in-flight request.

For a call made through the ".atomic" variant of a method, streamed
results are collected and shipped as a single array result just before
the completing status.
*/
type Session struct {
	bus    gosrf.Transport
	thread string
	// The caller's private reply queue.
	clientAddr string
	// Sequence number of the call being served.
	trace uint64

	atomic    bool
	collected []any

	responded bool
}

func newSession(bus gosrf.Transport, thread, clientAddr string) *Session {
	return &Session{bus: bus, thread: thread, clientAddr: clientAddr}
}

func (s *Session) Thread() string {
	return s.thread
}

// The caller's reply address.
func (s *Session) ClientAddr() string {
	return s.clientAddr
}

func (s *Session) send(msgs ...gosrf.Message) error {
	tm := gosrf.NewTransportMessage(s.clientAddr, s.bus.Address().String(), s.thread, msgs...)
	tm.XID = log.LogTrace()
	return s.bus.Send(tm)
}

// Stream one result to the caller. Handlers may call this any number of
// times, including zero.
func (s *Session) Respond(value any) error {
	if s.atomic {
		s.collected = append(s.collected, value)
		return nil
	}
	return s.send(gosrf.NewResultMessage(s.trace, value))
}

/*
Stream a final result (unless value is nil) and terminate the call with
the completing status. Handlers that do not call this get the completion
sent on their behalf when they return.
*/
func (s *Session) RespondComplete(value any) error {
	if value != nil {
		if err := s.Respond(value); err != nil {
			return err
		}
	}
	return s.sendComplete()
}

func (s *Session) sendComplete() error {
	if s.responded {
		return nil
	}
	s.responded = true

	msgs := []gosrf.Message{}
	if s.atomic {
		// nil collected still yields an empty array for the caller.
		content := s.collected
		if content == nil {
			content = []any{}
		}
		msgs = append(msgs, gosrf.NewResultMessage(s.trace, content))
	}
	msgs = append(msgs, gosrf.NewStatusMessage(s.trace, gosrf.StatusComplete))

	return s.send(msgs...)
}

// Terminate the call with an arbitrary status, e.g. Method Not Found.
func (s *Session) sendStatus(status gosrf.MessageStatus) error {
	if status == gosrf.StatusComplete {
		return s.sendComplete()
	}
	if status.Failed() {
		s.responded = true
	}
	return s.send(gosrf.NewStatusMessage(s.trace, status))
}
