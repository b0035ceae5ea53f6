package server

import (
	"os"
	"strconv"
	"time"

	"github.com/gosrf/gosrf/log"
)

const (
	DEFAULT_MIN_WORKERS         = 3
	DEFAULT_MAX_WORKERS         = 30
	DEFAULT_MIN_IDLE_WORKERS    = 1
	DEFAULT_MAX_WORKER_REQUESTS = 1000
	DEFAULT_KEEPALIVE_TIMEOUT   = 5 * time.Second
	DEFAULT_IDLE_WAKE_TIME      = 5 * time.Second
	DEFAULT_SHUTDOWN_MAX_WAIT   = 30 * time.Second
)

/*
Pool shape and timing for one server. Use the builder methods before
Start; a SIGHUP re-reads the environment overrides at runtime without
restarting workers.
*/
type Config struct {
	minWorkers        int
	maxWorkers        int
	minIdleWorkers    int
	maxWorkerRequests int
	keepaliveTimeout  time.Duration
	idleWakeTime      time.Duration
	shutdownMaxWait   time.Duration

	// Router domains to register the service with; empty means clients
	// deliver straight to the service queue.
	routers []string
}

func NewConfig() *Config {
	conf := &Config{
		minWorkers:        DEFAULT_MIN_WORKERS,
		maxWorkers:        DEFAULT_MAX_WORKERS,
		minIdleWorkers:    DEFAULT_MIN_IDLE_WORKERS,
		maxWorkerRequests: DEFAULT_MAX_WORKER_REQUESTS,
		keepaliveTimeout:  DEFAULT_KEEPALIVE_TIMEOUT,
		idleWakeTime:      DEFAULT_IDLE_WAKE_TIME,
		shutdownMaxWait:   DEFAULT_SHUTDOWN_MAX_WAIT,
	}
	conf.readEnv()
	return conf
}

func (c *Config) MinWorkers(n int) *Config {
	c.minWorkers = n
	return c
}

func (c *Config) MaxWorkers(n int) *Config {
	c.maxWorkers = n
	return c
}

func (c *Config) MinIdleWorkers(n int) *Config {
	c.minIdleWorkers = n
	return c
}

// Workers retire and are replaced after serving this many requests.
func (c *Config) MaxWorkerRequests(n int) *Config {
	c.maxWorkerRequests = n
	return c
}

// How long a pinned worker waits for the next message of its session.
func (c *Config) KeepaliveTimeout(d time.Duration) *Config {
	c.keepaliveTimeout = d
	return c
}

// Interval between idle-wake calls to a worker with nothing in hand.
// Idle resource release happens on this cadence.
func (c *Config) IdleWakeTime(d time.Duration) *Config {
	c.idleWakeTime = d
	return c
}

// Upper bound on waiting for in-flight workers during graceful shutdown.
func (c *Config) ShutdownMaxWait(d time.Duration) *Config {
	c.shutdownMaxWait = d
	return c
}

func (c *Config) Routers(domains ...string) *Config {
	c.routers = domains
	return c
}

func envInt(name string, out *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*out = n
		} else {
			log.OSRF_log(log.LOGLEVEL_WARNINGS, "Ignoring bad", name, "value:", v)
		}
	}
}

// Apply environment overrides; called at construction and again on
// reload.
func (c *Config) readEnv() {
	envInt("OSRF_SERVER_MIN_WORKERS", &c.minWorkers)
	envInt("OSRF_SERVER_MAX_WORKERS", &c.maxWorkers)
	envInt("OSRF_SERVER_MIN_IDLE_WORKERS", &c.minIdleWorkers)
	envInt("OSRF_SERVER_MAX_WORKER_REQUESTS", &c.maxWorkerRequests)

	if c.maxWorkers < c.minWorkers {
		c.maxWorkers = c.minWorkers
	}
}
