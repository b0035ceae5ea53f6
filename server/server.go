package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
	"github.com/gosrf/gosrf/client"
	"github.com/gosrf/gosrf/log"
	"github.com/gosrf/gosrf/signals"
)

// How long one pass of the scheduler's receive loop blocks on the
// service queue before housekeeping runs again.
const SCHEDULER_POLL_TIME = time.Second

// Bound on one blocking wait for a worker event while the pool is
// saturated.
const DISPATCH_WAIT_TIME = time.Second

// Mints one bus connection per call, each with a fresh client address on
// the same domain. Every worker gets its own.
type TransportFactory func() (gosrf.Transport, error)

// Scheduler-side record of one worker.
type workerInstance struct {
	id    uint64
	state WorkerState
	// Single-writer (scheduler) handoff channel; closing it stops the
	// worker.
	requests chan *gosrf.TransportMessage
	// Closed by the worker on exit, however it exits.
	done chan struct{}
}

/*
The worker pool scheduler for one service. Drains the service queue,
dispatches envelopes to idle workers, maintains the pool between
minWorkers and maxWorkers with one spare idle worker, and reaps and
respawns workers that retire, fail, or panic.

The scheduler and its worker map stay on the goroutine that called
Start; workers report state changes over the events channel.
*/
type Server struct {
	app  Application
	conf *Config
	sig  *signals.Tracker

	newTransport TransportFactory
	bus          gosrf.Transport
	serviceQueue string

	methods map[string]*MethodDef

	workers map[uint64]*workerInstance
	events  chan workerEvent
	lastID  uint64
}

// Create a server draining conf's service queue over connections minted
// by factory.
func NewServer(app Application, conf *Config, sig *signals.Tracker, factory TransportFactory) (*Server, error) {
	schedBus, err := factory()
	if err != nil {
		return nil, err
	}

	addr := schedBus.Address()

	return &Server{
		app:          app,
		conf:         conf,
		sig:          sig,
		newTransport: factory,
		bus:          schedBus,
		serviceQueue: addr.ServicePeer(app.Name()),
		workers:      make(map[uint64]*workerInstance),
		// Buffered so exiting workers can report Done even while the
		// scheduler is busy elsewhere.
		events: make(chan workerEvent, 2*conf.maxWorkers),
	}, nil
}

// Create a server on the Redis bus described by busConf.
func NewBusServer(app Application, conf *Config, busConf *bus.Config) (*Server, error) {
	return NewServer(app, conf, signals.NewTracker(), func() (gosrf.Transport, error) {
		return bus.Connect(busConf)
	})
}

// The compiled service queue key this server drains.
func (s *Server) ServiceQueue() string {
	return s.serviceQueue
}

// Request a graceful shutdown from another goroutine, equivalent to
// SIGTERM.
func (s *Server) Shutdown() {
	s.sig.RequestGracefulShutdown()
}

/*
Run the service: register methods, start the minimum worker complement,
then dispatch until a shutdown is requested. Blocks for the server's
whole life; returns nil after a clean shutdown.
*/
func (s *Server) Start() error {
	s.sig.TrackGracefulShutdown()
	s.sig.TrackFastShutdown()
	s.sig.TrackReload()

	s.methods = make(map[string]*MethodDef)
	for _, def := range s.app.RegisterMethods() {
		def := def
		s.methods[def.Name] = &def
		log.OSRF_log(log.LOGLEVEL_INFO, "Registered method:", def.Name)
	}
	for _, def := range s.systemMethods() {
		def := def
		s.methods[def.Name] = &def
	}

	if err := s.initApp(); err != nil {
		return err
	}

	s.registerRouters()

	for len(s.workers) < s.conf.minWorkers {
		if err := s.spawnWorker(); err != nil {
			return err
		}
	}

	log.OSRF_log(log.LOGLEVEL_INFO, "Service", s.app.Name(), "listening on", s.serviceQueue,
		"with", len(s.workers), "workers")

	err := s.mainloop()
	s.shutdown()
	return err
}

// One-time application startup with a private bootstrap client.
func (s *Server) initApp() error {
	t, err := s.newTransport()
	if err != nil {
		return err
	}
	c := client.NewClient(t)
	defer c.Close()

	if err := s.app.Init(c); err != nil {
		return fmt.Errorf("application init failed: %s", err)
	}
	return nil
}

func (s *Server) mainloop() error {
	for {
		if s.sig.AnyShutdownRequested() {
			return nil
		}

		if s.sig.ReloadRequested() {
			log.OSRF_log(log.LOGLEVEL_INFO, "Reloading configuration")
			s.conf.readEnv()
			s.sig.ClearReload()
		}

		s.housekeeping(false)

		tm, err := s.bus.Recv(SCHEDULER_POLL_TIME, s.serviceQueue)
		if err != nil {
			// A transport failure is fatal to the scheduler.
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Scheduler recv failed:", err.Error())
			return err
		}
		if tm == nil {
			continue
		}

		if err := s.dispatchRequest(tm); err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "Dispatch abandoned:", err.Error())
			return nil
		}
	}
}

/*
Hand one envelope to an idle worker: take one if present, spawn one if
capacity remains, otherwise block in bounded slices waiting for a worker
event to free one up, interleaving housekeeping between slices.
*/
func (s *Server) dispatchRequest(tm *gosrf.TransportMessage) error {
	for {
		if wi := s.nextIdleWorker(); wi != nil {
			wi.state = WorkerActive
			wi.requests <- tm
			return nil
		}

		if len(s.workers) < s.conf.maxWorkers {
			if err := s.spawnWorker(); err != nil {
				return err
			}
			continue
		}

		if s.sig.AnyShutdownRequested() {
			return errors.New("shutdown requested while awaiting worker")
		}

		log.OSRF_log(log.LOGLEVEL_WARNINGS, "Pool saturated at", len(s.workers),
			"workers; waiting for one to free up")
		s.housekeeping(true)
	}
}

/*
Pool upkeep between dispatches: absorb pending worker events, reap
workers whose goroutine died without reporting, refill to minWorkers,
and keep one spare idle worker while capacity remains. With block set,
first wait up to DISPATCH_WAIT_TIME for a worker event.
*/
func (s *Server) housekeeping(block bool) {
	if block {
		timer := time.NewTimer(DISPATCH_WAIT_TIME)
		select {
		case evt := <-s.events:
			s.handleWorkerEvent(evt)
		case <-timer.C:
		}
		timer.Stop()
	}

	for {
		select {
		case evt := <-s.events:
			s.handleWorkerEvent(evt)
			continue
		default:
		}
		break
	}

	s.checkFailedWorkers()

	for len(s.workers) < s.conf.minWorkers {
		if err := s.spawnWorker(); err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Could not refill worker pool:", err.Error())
			return
		}
	}

	if s.idleCount() < s.conf.minIdleWorkers && len(s.workers) < s.conf.maxWorkers {
		if err := s.spawnWorker(); err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Could not spawn spare worker:", err.Error())
		}
	}
}

func (s *Server) handleWorkerEvent(evt workerEvent) {
	wi, ok := s.workers[evt.id]
	if !ok {
		// Already reaped.
		return
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.OSRF_log(log.LOGLEVEL_DEBUG, "Worker", evt.id, "reported", evt.state.String())
	}

	if evt.state == WorkerDone {
		delete(s.workers, evt.id)
		return
	}

	wi.state = evt.state
}

// Reap workers whose goroutine exited without a Done report, e.g. after
// a panic.
func (s *Server) checkFailedWorkers() {
	for id, wi := range s.workers {
		select {
		case <-wi.done:
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Worker", id, "died without reporting; reaping")
			delete(s.workers, id)
		default:
		}
	}
}

func (s *Server) nextIdleWorker() *workerInstance {
	for _, wi := range s.workers {
		if wi.state == WorkerIdle {
			return wi
		}
	}
	return nil
}

func (s *Server) idleCount() int {
	count := 0
	for _, wi := range s.workers {
		if wi.state == WorkerIdle {
			count++
		}
	}
	return count
}

func (s *Server) spawnWorker() error {
	t, err := s.newTransport()
	if err != nil {
		return err
	}

	s.lastID++
	wi := &workerInstance{
		id:       s.lastID,
		state:    WorkerIdle,
		requests: make(chan *gosrf.TransportMessage, 1),
		done:     make(chan struct{}),
	}
	s.workers[wi.id] = wi

	w := &worker{
		id:           wi.id,
		service:      s.app.Name(),
		bus:          t,
		methods:      s.methods,
		app:          s.app.WorkerFactory(),
		sig:          s.sig,
		keepalive:    s.conf.keepaliveTimeout,
		idleWakeTime: s.conf.idleWakeTime,
		maxRequests:  s.conf.maxWorkerRequests,
		requests:     wi.requests,
		events:       s.events,
		done:         wi.done,
	}

	go w.run()

	log.OSRF_log(log.LOGLEVEL_DEBUG, "Spawned worker", wi.id)
	return nil
}

/*
Stop dispatching, tell every worker to exit, and join them all: no
goroutine of the pool may outlive Start. In-flight workers get up to
shutdownMaxWait to finish; a fast shutdown skips the wait.
*/
func (s *Server) shutdown() {
	log.OSRF_log(log.LOGLEVEL_INFO, "Shutting down", s.app.Name(), "with",
		len(s.workers), "workers")

	s.unregisterRouters()

	for _, wi := range s.workers {
		close(wi.requests)
	}

	if !s.sig.FastShutdownRequested() {
		timer := gosrf.NewTimer(s.conf.shutdownMaxWait)
		for len(s.workers) > 0 && !timer.Done() {
			waiter := time.NewTimer(100 * time.Millisecond)
			select {
			case evt := <-s.events:
				if evt.state == WorkerDone {
					if wi, ok := s.workers[evt.id]; ok {
						// The goroutine closes done right after its
						// report; join it before dropping the record.
						<-wi.done
						delete(s.workers, evt.id)
					}
				}
			case <-waiter.C:
				s.checkFailedWorkers()
			}
			waiter.Stop()
		}
	}

	// Join whatever remains, bounded by each worker's own exit path.
	for id, wi := range s.workers {
		select {
		case <-wi.done:
		case <-time.After(time.Second):
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Worker", id, "did not exit in time")
		}
	}

	s.bus.Close()
	log.OSRF_log(log.LOGLEVEL_INFO, "Shutdown of", s.app.Name(), "complete")
}

// Announce the service to the configured routers.
func (s *Server) registerRouters() {
	s.sendRouterCommand("register")
}

func (s *Server) unregisterRouters() {
	s.sendRouterCommand("unregister")
}

func (s *Server) sendRouterCommand(command string) {
	addr := s.bus.Address()

	for _, domain := range s.conf.routers {
		router := gosrf.RouterAddress(addr.Username(), domain)

		tm := gosrf.NewTransportMessage(router.String(), addr.String(), gosrf.RandomToken(12))
		tm.RouterCommand = command
		tm.RouterClass = s.app.Name()

		if err := s.bus.SendTo(router.String(), tm); err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Router", command, "failed for",
				router.String(), ":", err.Error())
		} else {
			log.OSRF_log(log.LOGLEVEL_INFO, "Sent router", command, "to", router.String())
		}
	}
}
