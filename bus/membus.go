package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
)

// Process-global queue registry shared by all MemBus connections.
var memRegistry = struct {
	sync.Mutex
	queues map[string]chan []byte
}{queues: make(map[string]chan []byte)}

const memQueueDepth = 1024

func memQueue(key string) chan []byte {
	memRegistry.Lock()
	defer memRegistry.Unlock()
	q, ok := memRegistry.queues[key]
	if !ok {
		q = make(chan []byte, memQueueDepth)
		memRegistry.queues[key] = q
	}
	return q
}

/*
MemBus is the in-process rendition of the queue transport: same FIFO and
per-key semantics as the Redis Bus, but backed by in-memory channels.
It serves embedded deployments where client and server share one process,
and tests that need a bus without a queue store.
*/
type MemBus struct {
	addr *gosrf.BusAddress
}

func ConnectMem(username, domain string) *MemBus {
	return &MemBus{addr: gosrf.ClientAddress(username, domain)}
}

func (b *MemBus) Address() *gosrf.BusAddress {
	return b.addr
}

func (b *MemBus) Send(tm *gosrf.TransportMessage) error {
	return b.SendTo(tm.To, tm)
}

func (b *MemBus) SendTo(recipient string, tm *gosrf.TransportMessage) error {
	if tm.XID == "" {
		tm.XID = log.LogTrace()
	}

	data, err := tm.Encode()
	if err != nil {
		return err
	}

	select {
	case memQueue(recipient) <- data:
		return nil
	default:
		return errors.New("mem queue full: " + recipient)
	}
}

func (b *MemBus) Recv(timeout time.Duration, queue string) (*gosrf.TransportMessage, error) {
	if queue == "" {
		queue = b.addr.String()
	}
	q := memQueue(queue)

	for {
		var data []byte

		if timeout == 0 {
			select {
			case data = <-q:
			default:
				return nil, nil
			}
		} else if timeout < 0 {
			data = <-q
		} else {
			timer := time.NewTimer(timeout)
			select {
			case data = <-q:
				timer.Stop()
			case <-timer.C:
				return nil, nil
			}
		}

		tm, err := gosrf.DecodeTransportMessage(data)
		if err != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Dropped malformed bus message:", err.Error())
			continue
		}
		return tm, nil
	}
}

func (b *MemBus) Close() error {
	memRegistry.Lock()
	defer memRegistry.Unlock()
	delete(memRegistry.queues, b.addr.String())
	return nil
}

var _ gosrf.Transport = (*MemBus)(nil)
