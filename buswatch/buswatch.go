/*
Buswatch is a bus watchdog. It periodically enumerates the message
queues on the store, reports their depths, and applies a self-expiry
to any queue with none set, so that queues whose consumer has died do
not accumulate entries forever.

	$ buswatch -domain private.localhost -ttl 1800
*/
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
	"github.com/gosrf/gosrf/log"
	"github.com/gosrf/gosrf/signals"
)

func main() {
	var redisHost, domain string
	var redisPort, ttlSecs, pollSecs uint
	var verbose bool

	flag.StringVar(&redisHost, "redis-host", "127.0.0.1", "host of the queue store")
	flag.UintVar(&redisPort, "redis-port", 6379, "port of the queue store")
	flag.StringVar(&domain, "domain", "private.localhost", "bus domain to connect from")
	flag.UintVar(&ttlSecs, "ttl", 1800, "expiry in seconds applied to queues without one")
	flag.UintVar(&pollSecs, "poll", 60, "seconds between sweeps")
	flag.BoolVar(&verbose, "v", false, "log every queue, not just the acted-upon ones")

	flag.Parse()

	if verbose {
		log.SetLoglevel(log.LOGLEVEL_DEBUG)
	} else {
		log.SetLoglevel(log.LOGLEVEL_INFO)
	}

	b, err := bus.Connect(bus.NewConfig(domain).Host(redisHost).Port(redisPort))
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer b.Close()

	sig := signals.NewTracker()
	sig.TrackGracefulShutdown()
	sig.TrackFastShutdown()

	ttl := time.Duration(ttlSecs) * time.Second
	poll := time.Duration(pollSecs) * time.Second
	pattern := gosrf.AddressNamespace + ":*"

	log.OSRF_log(log.LOGLEVEL_INFO, "buswatch sweeping", pattern, "every", poll.String())

	for !sig.AnyShutdownRequested() {
		sweep(b, pattern, ttl)

		wake := time.Now().Add(poll)
		for time.Now().Before(wake) && !sig.AnyShutdownRequested() {
			time.Sleep(time.Second)
		}
	}

	log.OSRF_log(log.LOGLEVEL_INFO, "buswatch exiting on shutdown signal")
}

/*
One pass over the live queues: log depth for each, stamp an expiry onto
queues that have none. A queue actively drained by its consumer gets its
expiry refreshed on every sweep, so only abandoned ones actually die.
*/
func sweep(b *bus.Bus, pattern string, ttl time.Duration) {
	keys, err := b.Keys(pattern)
	if err != nil {
		log.OSRF_log(log.LOGLEVEL_ERRORS, "key enumeration failed:", err.Error())
		return
	}

	for _, key := range keys {
		depth, err := b.Llen(key)
		if err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "cannot measure", key, ":", err.Error())
			continue
		}

		remaining, err := b.TTL(key)
		if err != nil {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "cannot read ttl of", key, ":", err.Error())
			continue
		}

		log.OSRF_log(log.LOGLEVEL_DEBUG, "queue", key, "depth", fmt.Sprint(depth),
			"ttl", remaining.String())

		if remaining < 0 {
			log.OSRF_log(log.LOGLEVEL_INFO, "applying expiry", ttl.String(), "to", key)
			if err := b.SetKeyTimeout(key, ttl); err != nil {
				log.OSRF_log(log.LOGLEVEL_WARNINGS, "cannot expire", key, ":", err.Error())
			}
		}
	}
}
