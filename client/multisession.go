package client

import (
	"time"

	"github.com/gosrf/gosrf"
)

/*
MultiSession fans one logical batch of calls out over many one-shot
sessions to the same service and collects whichever responses arrive
first. Each call gets its own conversation, so different workers may serve
them concurrently; Recv interleaves their streams back together, tagging
every value with the id Request returned.
*/
type MultiSession struct {
	client  *Client
	service string
	lastID  uint64
	active  map[uint64]*Request
}

func NewMultiSession(c *Client, service string) *MultiSession {
	return &MultiSession{
		client:  c,
		service: service,
		active:  make(map[uint64]*Request),
	}
}

// Issue one call of the batch. Returns the id Recv will report its
// responses under.
func (m *MultiSession) Request(method string, params ...any) (uint64, error) {
	ses := m.client.Session(m.service)

	req, err := ses.Request(method, params...)
	if err != nil {
		ses.Cleanup()
		return 0, err
	}

	m.lastID++
	m.active[m.lastID] = req
	return m.lastID, nil
}

// Whether every issued call has terminated.
func (m *MultiSession) Complete() bool {
	return len(m.active) == 0
}

// How many calls are still outstanding.
func (m *MultiSession) Outstanding() int {
	return len(m.active)
}

/*
Await the next value from any outstanding call. Returns the call's id and
the value, or (0, nil, nil) when the timeout elapsed or no calls remain.
Completed and failed calls are dropped from the batch; a failed call
surfaces its error once, tagged with its id.
*/
func (m *MultiSession) Recv(timeout time.Duration) (uint64, any, error) {
	timer := gosrf.NewTimer(timeout)

	for len(m.active) > 0 && !timer.Done() {
		for id, req := range m.active {
			// Short slices per call so one silent stream cannot starve
			// the others.
			wait := 25 * time.Millisecond
			if rem := timer.Remaining(); rem < wait {
				wait = rem
			}

			value, err := req.Recv(wait)
			if err != nil {
				delete(m.active, id)
				req.session.Cleanup()
				return id, nil, err
			}
			if value != nil {
				return id, value, nil
			}
			if req.Complete() {
				delete(m.active, id)
				req.session.Cleanup()
			}
		}
	}

	return 0, nil, nil
}
