package client

import (
	"fmt"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
)

type RequestState int

const (
	RequestUnsent RequestState = iota
	RequestSent
	// At least one result has arrived, the terminal status has not.
	RequestReceiving
	RequestComplete
	RequestErrored
	RequestTimedOut
)

var request_state_strings []string = []string{
	"Unsent", "Sent", "Receiving", "Complete", "Errored", "TimedOut"}

func (s RequestState) String() string {
	return request_state_strings[s]
}

/*
One outstanding call. Results stream in via Recv until the server's
terminal status arrives; a status code >= 300 fails the call. A timed out
request keeps any partially received results retrievable from the session
backlog by later Recv calls, should the reply still arrive.
*/
type Request struct {
	session *Session
	trace   uint64
	method  string
	state   RequestState
	err     error
}

func (r *Request) State() RequestState {
	return r.state
}

// Whether the call has reached a terminal state.
func (r *Request) Complete() bool {
	return r.state == RequestComplete || r.state == RequestErrored
}

// The error that moved the call to Errored, if any.
func (r *Request) Err() error {
	return r.err
}

/*
Await the next streamed result for this call. Returns (nil, nil) when the
call completed or when the timeout elapsed without a response; inspect
State to tell the two apart. Messages for other outstanding calls observed
on the way are buffered for their own Recv, never discarded.
*/
func (r *Request) Recv(timeout time.Duration) (any, error) {
	if r.state == RequestComplete || r.state == RequestErrored {
		return nil, r.err
	}

	// A result may already have been demultiplexed on our behalf.
	if msg, ok := r.session.popBacklog(r.trace); ok {
		return r.handleMessage(msg, nil)
	}

	var timer *gosrf.Timer
	if timeout >= 0 {
		timer = gosrf.NewTimer(timeout)
	}

	// Always take at least one pass so a zero timeout still polls the
	// transport once before giving up.
	for {
		wait := gosrf.WaitForever
		if timer != nil {
			wait = timer.Remaining()
		}

		tm, err := r.session.client.recvSessionEnvelope(wait, r.session.thread)
		if err != nil {
			return nil, err
		}
		if tm == nil {
			break
		}

		r.session.absorbEnvelope(tm)

		if msg, ok := r.session.popBacklog(r.trace); ok {
			value, err := r.handleMessage(msg, timer)
			if value != nil || err != nil || r.Complete() {
				return value, err
			}
			// Keep-going status; continue receiving.
		}

		if timer != nil && timer.Done() {
			break
		}
	}

	r.state = RequestTimedOut
	log.OSRF_log(log.LOGLEVEL_WARNINGS, "Request timed out:", r.method, "trace", r.trace)
	return nil, nil
}

// Collect every remaining result until the call completes, fails, or the
// timeout elapses.
func (r *Request) Collect(timeout time.Duration) ([]any, error) {
	var results []any
	timer := gosrf.NewTimer(timeout)

	for !r.Complete() {
		value, err := r.Recv(timer.Remaining())
		if err != nil {
			return results, err
		}
		if value == nil {
			break
		}
		results = append(results, value)
	}

	return results, r.err
}

func (r *Request) handleMessage(msg gosrf.Message, timer *gosrf.Timer) (any, error) {
	switch msg.MType {
	case gosrf.Result:
		res := msg.Payload.(*gosrf.ResultPayload)
		r.state = RequestReceiving
		return res.Content, nil

	case gosrf.Status:
		return nil, r.handleStatus(msg.Payload.(*gosrf.StatusPayload).Status, timer)
	}

	log.OSRF_log(log.LOGLEVEL_WARNINGS, "Unexpected message kind in response:", string(msg.MType))
	return nil, nil
}

func (r *Request) handleStatus(status gosrf.MessageStatus, timer *gosrf.Timer) error {
	ses := r.session

	switch {
	case status == gosrf.StatusOk:
		// Acknowledges our Connect; pin the answering worker.
		ses.connected = true
		ses.remoteAddr = ses.lastFrom
		r.state = RequestComplete
		log.OSRF_log(log.LOGLEVEL_DEBUG, "Session", ses.thread, "pinned to", ses.remoteAddr)

	case status == gosrf.StatusComplete:
		r.state = RequestComplete
		delete(ses.requests, r.trace)

	case status == gosrf.StatusContinue:
		// The server asked for patience; restart the clock.
		if timer != nil {
			timer.Reset()
		}

	case status == gosrf.StatusTimeout && ses.connected:
		// The pinned worker dropped us for idling.
		ses.connected = false
		ses.remoteAddr = ses.serviceAddr()
		r.state = RequestErrored
		r.err = fmt.Errorf("session to %s timed out on keepalive", ses.service)
		delete(ses.requests, r.trace)
		return r.err

	case status.Failed():
		r.state = RequestErrored
		r.err = fmt.Errorf("request %s failed: %d %s", r.method, status, status.Label())
		delete(ses.requests, r.trace)
		return r.err

	default:
		log.OSRF_log(log.LOGLEVEL_WARNINGS, "Ignoring unexpected status:", int(status), status.Label())
	}

	return nil
}
