package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
	"github.com/gosrf/gosrf/signals"
)

type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerActive
	WorkerDone
)

var worker_state_strings []string = []string{"Idle", "Active", "Done"}

func (s WorkerState) String() string {
	return worker_state_strings[s]
}

// State change report from a worker to the scheduler.
type workerEvent struct {
	id    uint64
	state WorkerState
}

/*
One pool worker. Owns its own bus connection (with a private client
address stateful sessions are pinned to) and its own ApplicationWorker.
Receives work from the scheduler over a single-writer/single-reader
handoff channel while idle, and directly from its private queue while a
session is pinned to it.
*/
type worker struct {
	id      uint64
	service string
	bus     gosrf.Transport
	methods map[string]*MethodDef
	app     ApplicationWorker
	sig     *signals.Tracker

	keepalive    time.Duration
	idleWakeTime time.Duration
	maxRequests  int

	// Closed by the scheduler to stop the worker.
	requests <-chan *gosrf.TransportMessage
	events   chan<- workerEvent
	// Closed on exit, no matter how the worker dies.
	done chan struct{}

	connected   bool
	session     *Session
	numRequests int
	// The call a handler is currently serving, for the panic path.
	call *gosrf.MethodCall
}

func (w *worker) logPrefix() string {
	return fmt.Sprintf("[worker %d]", w.id)
}

func (w *worker) run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			// An unrecovered handler panic. Exit without a Done report;
			// the scheduler's liveness check reaps us.
			log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "panicked:", r)
			if w.call != nil {
				w.app.APICallError(w.call, fmt.Errorf("handler panic: %v", r))
			}
			if w.session != nil {
				w.session.sendStatus(gosrf.StatusInternalServerError)
			}
			w.bus.Close()
		}
	}()

	if err := w.app.AbsorbEnv(w.methods); err != nil {
		log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "absorb env failed:", err.Error())
		w.exit()
		return
	}
	if err := w.app.WorkerStart(); err != nil {
		log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "worker start failed:", err.Error())
		w.exit()
		return
	}

	log.OSRF_log(log.LOGLEVEL_DEBUG, w.logPrefix(), "listening as", w.bus.Address().String())

	w.listen()
	w.exit()
}

func (w *worker) listen() {
	for {
		if w.sig.AnyShutdownRequested() {
			return
		}

		if w.connected {
			if !w.listenConnected() {
				return
			}
		} else {
			if !w.listenIdle() {
				return
			}
		}

		// Never retire mid-session; the pinned client would be stranded.
		if !w.connected && w.numRequests >= w.maxRequests {
			log.OSRF_log(log.LOGLEVEL_INFO, w.logPrefix(),
				"retiring after", w.numRequests, "requests")
			return
		}
	}
}

// Await the next handoff from the scheduler. Returns false when the
// worker should exit.
func (w *worker) listenIdle() bool {
	timer := time.NewTimer(w.idleWakeTime)
	defer timer.Stop()

	select {
	case tm, ok := <-w.requests:
		if !ok {
			return false
		}
		w.handleEnvelope(tm)
		return true
	case <-timer.C:
		if err := w.app.WorkerIdleWake(false); err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "idle wake failed:", err.Error())
			return false
		}
		return true
	}
}

/*
Await the pinned client's next envelope on our private queue. Going
silent past the keepalive window ends the session with a Timeout status.
Returns false when the worker should exit.
*/
func (w *worker) listenConnected() bool {
	tm, err := w.bus.Recv(w.keepalive, "")
	if err != nil {
		log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "recv failed:", err.Error())
		return false
	}

	if tm == nil {
		log.OSRF_log(log.LOGLEVEL_INFO, w.logPrefix(), "keepalive timeout for", w.session.ClientAddr())
		if err := w.app.KeepaliveTimeout(); err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "keepalive hook failed:", err.Error())
		}
		w.session.sendStatus(gosrf.StatusTimeout)
		w.endSession()
		// Back to the shared queue; tell the scheduler, unless we are
		// about to retire and must not be dispatched to again.
		if w.numRequests < w.maxRequests {
			w.events <- workerEvent{id: w.id, state: WorkerIdle}
		}
		return true
	}

	w.handleEnvelope(tm)
	return true
}

func (w *worker) handleEnvelope(tm *gosrf.TransportMessage) {
	if tm.XID != "" {
		log.SetLogTrace(tm.XID)
	} else {
		log.SetLogTrace(log.CreateLogTrace())
	}
	defer log.ClearLogTrace()

	for i := range tm.Body {
		msg := &tm.Body[i]

		switch msg.MType {
		case gosrf.Connect:
			w.handleConnect(tm, msg)

		case gosrf.Request:
			w.handleRequest(tm, msg)

		case gosrf.Disconnect:
			log.OSRF_log(log.LOGLEVEL_DEBUG, w.logPrefix(), "client disconnected:", tm.From)
			w.endSession()

		default:
			log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(),
				"ignoring unexpected message kind:", string(msg.MType))
		}
	}

	if !w.connected {
		w.session = nil
		// Hand ourselves back to the pool, unless the request count says
		// we retire next: advertising Idle then would let the scheduler
		// dispatch into a channel nobody reads again.
		if w.numRequests < w.maxRequests {
			w.events <- workerEvent{id: w.id, state: WorkerIdle}
		}
	}
}

func (w *worker) handleConnect(tm *gosrf.TransportMessage, msg *gosrf.Message) {
	w.session = newSession(w.bus, tm.Thread, tm.From)
	w.session.trace = msg.ThreadTrace

	if err := w.app.StartSession(); err != nil {
		log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "start session failed:", err.Error())
		w.session.sendStatus(gosrf.StatusInternalServerError)
		w.session = nil
		return
	}

	w.connected = true
	// The OK travels from our private address; the client pins to it.
	w.session.sendStatus(gosrf.StatusOk)
}

func (w *worker) handleRequest(tm *gosrf.TransportMessage, msg *gosrf.Message) {
	// A whole stateful conversation counts as one request, tallied when
	// the session ends.
	if !w.connected {
		w.numRequests++
	}

	call, ok := msg.Payload.(*gosrf.MethodCall)
	if call == nil || !ok {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "request without method call payload")
		ses := w.requestSession(tm, msg)
		ses.sendStatus(gosrf.StatusBadRequest)
		return
	}

	ses := w.requestSession(tm, msg)

	name := call.Method
	if strings.HasSuffix(name, ".atomic") {
		ses.atomic = true
		name = strings.TrimSuffix(name, ".atomic")
	}

	def, found := w.methods[name]
	if !found {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "method not found:", call.Method)
		ses.sendStatus(gosrf.StatusMethodNotFound)
		return
	}

	if status, why := def.Validate(call); status.Failed() {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "rejecting call:", why)
		ses.sendStatus(status)
		return
	}

	if !w.connected {
		if err := w.app.StartSession(); err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "start session failed:", err.Error())
			ses.sendStatus(gosrf.StatusInternalServerError)
			return
		}
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.OSRF_log(log.LOGLEVEL_DEBUG, w.logPrefix(), "calling", call.Method)
	}

	w.call = call
	err := def.Handler(w.app, ses, call)
	w.call = nil

	if err != nil {
		w.app.APICallError(call, err)
		log.OSRF_log(log.LOGLEVEL_ERRORS, w.logPrefix(), "handler failed:", err.Error())
		ses.sendStatus(gosrf.StatusInternalServerError)
	} else {
		// No-op if the handler already completed the call.
		ses.sendComplete()
	}

	if !w.connected {
		if err := w.app.EndSession(); err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "end session failed:", err.Error())
		}
	}
}

// The session for one inbound request: the pinned session while
// connected, a fresh one per call otherwise.
func (w *worker) requestSession(tm *gosrf.TransportMessage, msg *gosrf.Message) *Session {
	if w.connected {
		w.session.trace = msg.ThreadTrace
		w.session.responded = false
		w.session.atomic = false
		w.session.collected = nil
		return w.session
	}

	w.session = newSession(w.bus, tm.Thread, tm.From)
	w.session.trace = msg.ThreadTrace
	return w.session
}

func (w *worker) endSession() {
	if err := w.app.EndSession(); err != nil {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "end session failed:", err.Error())
	}
	if w.connected {
		w.numRequests++
	}
	w.connected = false
	w.session = nil
}

// Clean exit: run the final hooks, report Done, release the connection.
func (w *worker) exit() {
	if w.connected {
		w.endSession()
	}
	if err := w.app.WorkerEnd(); err != nil {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, w.logPrefix(), "worker end failed:", err.Error())
	}
	w.bus.Close()
	w.events <- workerEvent{id: w.id, state: WorkerDone}
}
