package server

import (
	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/client"
)

/*
The plug-in surface a service implements. One Application describes the
service as a whole; its WorkerFactory supplies one ApplicationWorker per
pool worker, which carries the per-worker resources (e.g. a held database
connection) and receives lifecycle hooks at the matching transitions.
*/
type Application interface {
	// The service name, e.g. "opensrf.settings". Doubles as the method
	// name prefix by convention.
	Name() string

	// One-time startup work, before any worker exists. The client is a
	// connected bus client the application may use for bootstrap calls.
	Init(client *client.Client) error

	// The service's method definitions, collected once at startup.
	RegisterMethods() []MethodDef

	// A fresh per-worker object. Called once per spawned worker, on the
	// scheduler's goroutine; the object then belongs to its worker.
	WorkerFactory() ApplicationWorker
}

/*
Per-worker lifecycle hooks. All hooks run on the worker's own goroutine.
A worker serving a stateful session must release any session-held
resource in EndSession, including rolling back an open transaction when
the session ended abnormally.
*/
type ApplicationWorker interface {
	// Absorb the shared method registry before the worker starts
	// serving. The map is shared and read-only.
	AbsorbEnv(methods map[string]*MethodDef) error

	// The worker's goroutine is up and its bus connection is open.
	WorkerStart() error

	// Periodic wake while no request is in hand. connected reports
	// whether a stateful session is currently pinned to this worker.
	// Idle resource release belongs here.
	WorkerIdleWake(connected bool) error

	// A session begins: either a Connect arrived or a stateless request
	// is about to be handled.
	StartSession() error

	// The session ended: Disconnect, stateless completion, keepalive
	// expiry, or worker shutdown.
	EndSession() error

	// A pinned client went silent past the keepalive window. EndSession
	// follows.
	KeepaliveTimeout() error

	// A handler returned an error or panicked. The worker reports the
	// failure to the caller after this hook.
	APICallError(call *gosrf.MethodCall, err error)

	// The worker is exiting for good.
	WorkerEnd() error
}
