/*
Use either as

	$ echo -srv

or

	$ echo -cl

Both sides need a reachable Redis on -redis (default localhost:6379).
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
	"github.com/gosrf/gosrf/client"
	"github.com/gosrf/gosrf/log"
	"github.com/gosrf/gosrf/server"
)

const serviceName = "opensrf.echo"

type echoApp struct{}

func (a *echoApp) Name() string { return serviceName }

func (a *echoApp) Init(c *client.Client) error { return nil }

func (a *echoApp) WorkerFactory() server.ApplicationWorker { return &echoWorker{} }

func (a *echoApp) RegisterMethods() []server.MethodDef {
	return []server.MethodDef{
		{
			Name:       serviceName + ".echo",
			Desc:       "Returns every parameter as its own result",
			ParamCount: server.ParamCountAtLeast(1),
			Handler:    echoHandler,
		},
		{
			Name:       serviceName + ".error",
			Desc:       "Always fails, for exercising error statuses",
			ParamCount: server.ParamCountAny(),
			Handler:    errorReturningHandler,
		},
	}
}

func echoHandler(_ server.ApplicationWorker, ses *server.Session, call *gosrf.MethodCall) error {
	fmt.Println("Called echoHandler:", len(call.Params), "params")
	for _, p := range call.Params {
		if err := ses.Respond(p); err != nil {
			return err
		}
	}
	return nil
}

func errorReturningHandler(_ server.ApplicationWorker, _ *server.Session, _ *gosrf.MethodCall) error {
	return errors.New("Some error occurred in handler, abort")
}

// No per-worker resources to manage; every hook is a no-op.
type echoWorker struct{}

func (w *echoWorker) AbsorbEnv(map[string]*server.MethodDef) error { return nil }
func (w *echoWorker) WorkerStart() error                           { return nil }
func (w *echoWorker) WorkerIdleWake(bool) error                    { return nil }
func (w *echoWorker) StartSession() error                          { return nil }
func (w *echoWorker) EndSession() error                            { return nil }
func (w *echoWorker) KeepaliveTimeout() error                      { return nil }
func (w *echoWorker) APICallError(*gosrf.MethodCall, error)        {}
func (w *echoWorker) WorkerEnd() error                             { return nil }

func runServer(busConf *bus.Config) {
	srv, err := server.NewBusServer(&echoApp{},
		server.NewConfig().MinWorkers(2).MaxWorkers(10), busConf)
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	if err := srv.Start(); err != nil {
		fmt.Println(err.Error())
	}
}

func runClient(busConf *bus.Config) {
	cl, err := client.Connect(busConf)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer cl.Close()

	req, err := cl.Session(serviceName).Request(serviceName+".echo", "helloworld", "again")
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	values, err := req.Collect(10 * time.Second)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Println("Received response:", values)

	_, err = cl.SendRecvOne(serviceName, serviceName+".error", 10*time.Second)
	if err != nil {
		fmt.Println("Received expected error:", err.Error())
	}
}

func main() {
	var srv, cl bool
	var redisAddr, domain string

	flag.BoolVar(&srv, "srv", false, "Specify if you want us to run as server")
	flag.BoolVar(&cl, "cl", false, "Specify if you want us to run as client")
	flag.StringVar(&redisAddr, "redis", "localhost:6379", "host:port of the queue store")
	flag.StringVar(&domain, "domain", "private.localhost", "bus domain")

	flag.Parse()

	if (srv && cl) || (!srv && !cl) {
		fmt.Println("Wrong combination: Use either -srv or -cl")
		return
	}

	log.SetLoglevel(log.LOGLEVEL_INFO)

	host, port := redisAddr, uint(6379)
	if i := strings.LastIndex(redisAddr, ":"); i > 0 {
		host = redisAddr[:i]
		fmt.Sscanf(redisAddr[i+1:], "%d", &port)
	}
	busConf := bus.NewConfig(domain).Host(host).Port(port)

	if srv {
		runServer(busConf)
	}
	if cl {
		runClient(busConf)
	}
}
