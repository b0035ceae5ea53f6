/*
Package bus implements the queue transport: one connection to a shared,
Redis-compatible list-based queue store. A compiled address string is the
queue key its owner drains; sending is an atomic list push onto the
recipient's key, receiving an atomic (blocking or non-blocking) list pop.

Every connection owns a private client address/queue. Server schedulers
additionally pop from their shared service queue by passing its key to Recv.
*/
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/log"
)

type Bus struct {
	rdb  *redis.Client
	addr *gosrf.BusAddress
	ctx  context.Context
}

/*
Open a connection to the queue store described by conf. The connection is
lazy; the first Send or Recv dials. Each Bus gets a fresh client address
and must stay owned by a single goroutine.
*/
func Connect(conf *Config) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.endpoint(),
		Username: conf.username,
		Password: conf.password,
	})

	b := &Bus{
		rdb:  rdb,
		addr: gosrf.ClientAddress(conf.username, conf.domain),
		ctx:  context.Background(),
	}

	log.OSRF_log(log.LOGLEVEL_DEBUG, "Bus connected as", b.addr.String())

	return b, nil
}

func (b *Bus) Address() *gosrf.BusAddress {
	return b.addr
}

// Push an envelope onto the queue named by its To address.
func (b *Bus) Send(tm *gosrf.TransportMessage) error {
	return b.SendTo(tm.To, tm)
}

// Push an envelope onto an explicit queue key, regardless of its To
// address. Used for router control traffic.
func (b *Bus) SendTo(recipient string, tm *gosrf.TransportMessage) error {
	if tm.XID == "" {
		tm.XID = log.LogTrace()
	}

	data, err := tm.Encode()
	if err != nil {
		return err
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.OSRF_log(log.LOGLEVEL_DEBUG, "Sending to", recipient, ":", string(data))
	}

	if err := b.rdb.RPush(b.ctx, recipient, data).Err(); err != nil {
		return errors.New("bus send failed: " + err.Error())
	}
	return nil
}

// Pop one raw queue entry. Returns "" when nothing arrived in time.
func (b *Bus) recvOneChunk(timeout time.Duration, queue string) (string, error) {
	if timeout == 0 {
		val, err := b.rdb.LPop(b.ctx, queue).Result()
		if err == redis.Nil {
			return "", nil
		} else if err != nil {
			return "", errors.New("bus recv failed: " + err.Error())
		}
		return val, nil
	}

	if timeout < 0 {
		timeout = 0 // block forever
	}

	vals, err := b.rdb.BLPop(b.ctx, timeout, queue).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		return "", errors.New("bus recv failed: " + err.Error())
	}

	// BLPOP returns [key, value].
	return vals[1], nil
}

/*
Pop one envelope from queue (or from our own client queue when queue is
empty). Timeout semantics follow gosrf.Transport: 0 polls, negative blocks
forever, positive bounds the wait. Malformed entries are logged and
dropped, then receiving continues within the remaining time.
*/
func (b *Bus) Recv(timeout time.Duration, queue string) (*gosrf.TransportMessage, error) {
	if queue == "" {
		queue = b.addr.String()
	}

	if timeout == 0 {
		chunk, err := b.recvOneChunk(0, queue)
		if err != nil || chunk == "" {
			return nil, err
		}
		tm, derr := gosrf.DecodeTransportMessage([]byte(chunk))
		if derr != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Dropped malformed bus message:", derr.Error())
			return nil, nil
		}
		return tm, nil
	}

	if timeout < 0 {
		for {
			chunk, err := b.recvOneChunk(timeout, queue)
			if err != nil {
				return nil, err
			}
			if chunk == "" {
				continue
			}
			tm, derr := gosrf.DecodeTransportMessage([]byte(chunk))
			if derr != nil {
				log.OSRF_log(log.LOGLEVEL_ERRORS, "Dropped malformed bus message:", derr.Error())
				continue
			}
			return tm, nil
		}
	}

	timer := gosrf.NewTimer(timeout)
	for !timer.Done() {
		chunk, err := b.recvOneChunk(timer.Remaining(), queue)
		if err != nil {
			return nil, err
		}
		if chunk == "" {
			return nil, nil
		}
		tm, derr := gosrf.DecodeTransportMessage([]byte(chunk))
		if derr != nil {
			log.OSRF_log(log.LOGLEVEL_ERRORS, "Dropped malformed bus message:", derr.Error())
			continue
		}
		return tm, nil
	}

	return nil, nil
}

// Maintenance operations, used by the buswatch watchdog.

// Enumerate live queue keys matching pattern, e.g. "opensrf:*".
func (b *Bus) Keys(pattern string) ([]string, error) {
	return b.rdb.Keys(b.ctx, pattern).Result()
}

func (b *Bus) Llen(key string) (int64, error) {
	return b.rdb.LLen(b.ctx, key).Result()
}

// Remaining time to live of key; negative when no expiry is set or the key
// does not exist, per Redis TTL semantics.
func (b *Bus) TTL(key string) (time.Duration, error) {
	return b.rdb.TTL(b.ctx, key).Result()
}

// Apply a self-expiry to a queue so it cannot grow unbounded once its
// consumer has disappeared.
func (b *Bus) SetKeyTimeout(key string, ttl time.Duration) error {
	return b.rdb.Expire(b.ctx, key, ttl).Err()
}

func (b *Bus) Lrange(key string, start, stop int64) ([]string, error) {
	return b.rdb.LRange(b.ctx, key, start, stop).Result()
}

// Drop all pending entries in our own queue.
func (b *Bus) ClearQueue() error {
	return b.rdb.Del(b.ctx, b.addr.String()).Err()
}

// Delete our own queue and release the connection.
func (b *Bus) Close() error {
	if err := b.ClearQueue(); err != nil {
		log.OSRF_log(log.LOGLEVEL_WARNINGS, "Could not clear queue on close:", err.Error())
	}
	return b.rdb.Close()
}

var _ gosrf.Transport = (*Bus)(nil)
