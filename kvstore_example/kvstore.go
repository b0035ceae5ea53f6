/*
A small key/value service backed by SQLite, demonstrating session-held
resources: every worker owns its own database handle, a stateful session
holds an open transaction committed on clean Disconnect and rolled back
when the session ends any other way, and idle workers release their
handle until the next request needs it again.

	$ kvstore -db /tmp/kv.sqlite

Methods:

	opensrf.kvstore.get(key)
	opensrf.kvstore.set(key, value)
	opensrf.kvstore.delete(key)
	opensrf.kvstore.keys()
*/
package main

import (
	"database/sql"
	"flag"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
	"github.com/gosrf/gosrf/client"
	"github.com/gosrf/gosrf/log"
	"github.com/gosrf/gosrf/server"
)

const serviceName = "opensrf.kvstore"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type kvApp struct {
	dbPath string
}

func (a *kvApp) Name() string { return serviceName }

// Create the schema once before any worker exists.
func (a *kvApp) Init(c *client.Client) error {
	db, err := sql.Open("sqlite", a.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(schema)
	return err
}

func (a *kvApp) WorkerFactory() server.ApplicationWorker {
	return &kvWorker{dbPath: a.dbPath}
}

func (a *kvApp) RegisterMethods() []server.MethodDef {
	return []server.MethodDef{
		{
			Name:       serviceName + ".get",
			ParamCount: server.ParamCountExactly(1),
			Params:     []server.StaticParam{{Name: "key", Datatype: server.ParamString}},
			Handler:    kvGet,
		},
		{
			Name:       serviceName + ".set",
			ParamCount: server.ParamCountExactly(2),
			Params: []server.StaticParam{
				{Name: "key", Datatype: server.ParamString},
				{Name: "value", Datatype: server.ParamScalar},
			},
			Handler: kvSet,
		},
		{
			Name:       serviceName + ".delete",
			ParamCount: server.ParamCountExactly(1),
			Params:     []server.StaticParam{{Name: "key", Datatype: server.ParamString}},
			Handler:    kvDelete,
		},
		{
			Name:       serviceName + ".keys",
			ParamCount: server.ParamCountZero(),
			Handler:    kvKeys,
		},
	}
}

/*
Per-worker state: a lazily opened database handle and, while a stateful
session is up, one open transaction. The transaction is the session-held
resource: Disconnect commits it, every abnormal end rolls it back.
*/
type kvWorker struct {
	dbPath string
	db     *sql.DB
	tx     *sql.Tx
	// Whether the current session completed cleanly.
	clean bool
}

func (w *kvWorker) AbsorbEnv(map[string]*server.MethodDef) error { return nil }

func (w *kvWorker) WorkerStart() error { return nil }

// Open the handle on first use; idle wake drops it again.
func (w *kvWorker) handle() (*sql.DB, error) {
	if w.db == nil {
		db, err := sql.Open("sqlite", w.dbPath)
		if err != nil {
			return nil, err
		}
		w.db = db
		log.OSRF_log(log.LOGLEVEL_DEBUG, "kvstore worker opened", w.dbPath)
	}
	return w.db, nil
}

func (w *kvWorker) WorkerIdleWake(connected bool) error {
	if connected || w.db == nil {
		return nil
	}
	log.OSRF_log(log.LOGLEVEL_DEBUG, "kvstore worker releasing idle db handle")
	err := w.db.Close()
	w.db = nil
	return err
}

func (w *kvWorker) StartSession() error {
	db, err := w.handle()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	w.tx = tx
	w.clean = false
	return nil
}

func (w *kvWorker) EndSession() error {
	if w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx = nil

	if w.clean {
		return tx.Commit()
	}

	log.OSRF_log(log.LOGLEVEL_WARNINGS, "kvstore session ended abnormally; rolling back")
	return tx.Rollback()
}

func (w *kvWorker) KeepaliveTimeout() error {
	// The peer went away mid-session; EndSession must roll back.
	w.clean = false
	return nil
}

func (w *kvWorker) APICallError(call *gosrf.MethodCall, err error) {
	log.OSRF_log(log.LOGLEVEL_ERRORS, "kvstore call", call.Method, "failed:", err.Error())
	w.clean = false
}

func (w *kvWorker) WorkerEnd() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// The session's transaction. Stateless requests run in one-off
// transactions that commit per call.
func (w *kvWorker) markClean() {
	w.clean = true
}

func kvGet(aw server.ApplicationWorker, ses *server.Session, call *gosrf.MethodCall) error {
	w := aw.(*kvWorker)

	var value string
	err := w.tx.QueryRow("SELECT value FROM kv WHERE key = ?", call.Params[0]).Scan(&value)
	if err == sql.ErrNoRows {
		w.markClean()
		return ses.Respond(nil)
	} else if err != nil {
		return err
	}

	w.markClean()
	return ses.Respond(value)
}

func kvSet(aw server.ApplicationWorker, ses *server.Session, call *gosrf.MethodCall) error {
	w := aw.(*kvWorker)

	_, err := w.tx.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		call.Params[0], fmt.Sprint(call.Params[1]))
	if err != nil {
		return err
	}

	w.markClean()
	return ses.Respond(true)
}

func kvDelete(aw server.ApplicationWorker, ses *server.Session, call *gosrf.MethodCall) error {
	w := aw.(*kvWorker)

	res, err := w.tx.Exec("DELETE FROM kv WHERE key = ?", call.Params[0])
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	w.markClean()
	return ses.Respond(n > 0)
}

func kvKeys(aw server.ApplicationWorker, ses *server.Session, _ *gosrf.MethodCall) error {
	w := aw.(*kvWorker)

	rows, err := w.tx.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		if err := ses.Respond(key); err != nil {
			return err
		}
	}

	w.markClean()
	return rows.Err()
}

func main() {
	var dbPath, redisHost, domain string
	var redisPort uint

	flag.StringVar(&dbPath, "db", "kvstore.sqlite", "path of the SQLite database")
	flag.StringVar(&redisHost, "redis-host", "127.0.0.1", "host of the queue store")
	flag.UintVar(&redisPort, "redis-port", 6379, "port of the queue store")
	flag.StringVar(&domain, "domain", "private.localhost", "bus domain")

	flag.Parse()

	log.SetLoglevel(log.LOGLEVEL_INFO)

	busConf := bus.NewConfig(domain).Host(redisHost).Port(redisPort)

	srv, err := server.NewBusServer(&kvApp{dbPath: dbPath},
		server.NewConfig().MinWorkers(2).MaxWorkers(10), busConf)
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	if err := srv.Start(); err != nil {
		fmt.Println(err.Error())
	}
}
