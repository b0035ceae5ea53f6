package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosrf/gosrf"
	"github.com/gosrf/gosrf/bus"
)

// A fake worker endpoint on the in-process bus.
type testPeer struct {
	t   *testing.T
	bus *bus.MemBus
}

func newTestPeer(t *testing.T) *testPeer {
	return &testPeer{t: t, bus: bus.ConnectMem("osrf", "test.localhost")}
}

func (p *testPeer) close() {
	p.bus.Close()
}

// Pop the next request from the service queue.
func (p *testPeer) take(service string) *gosrf.TransportMessage {
	queue := gosrf.ServiceAddress("osrf", "test.localhost", service).String()
	tm, err := p.bus.Recv(time.Second, queue)
	require.NoError(p.t, err)
	require.NotNil(p.t, tm, "no request arrived on %s", queue)
	return tm
}

func (p *testPeer) reply(to *gosrf.TransportMessage, msgs ...gosrf.Message) {
	out := gosrf.NewTransportMessage(to.From, p.bus.Address().String(), to.Thread, msgs...)
	require.NoError(p.t, p.bus.Send(out))
}

func TestRequestStateProgression(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("state.test")
	req, err := ses.Request("state.test.stream", "x")
	require.NoError(t, err)
	require.Equal(t, RequestSent, req.State())

	in := peer.take("state.test")
	trace := in.Body[0].ThreadTrace
	peer.reply(in, gosrf.NewResultMessage(trace, "one"))
	peer.reply(in, gosrf.NewResultMessage(trace, "two"),
		gosrf.NewStatusMessage(trace, gosrf.StatusComplete))

	v, err := req.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "one", v)
	require.Equal(t, RequestReceiving, req.State())

	v, err = req.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "two", v)

	v, err = req.Recv(time.Second)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, RequestComplete, req.State())
}

func TestRequestErrorStatus(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("err.test")
	req, err := ses.Request("err.test.nope")
	require.NoError(t, err)

	in := peer.take("err.test")
	peer.reply(in, gosrf.NewStatusMessage(in.Body[0].ThreadTrace, gosrf.StatusMethodNotFound))

	v, err := req.Recv(time.Second)
	require.Error(t, err)
	require.Nil(t, v)
	require.Equal(t, RequestErrored, req.State())
}

func TestRequestTimeoutKeepsPartials(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("slow.test")
	req, err := ses.Request("slow.test.trickle")
	require.NoError(t, err)

	in := peer.take("slow.test")
	trace := in.Body[0].ThreadTrace
	peer.reply(in, gosrf.NewResultMessage(trace, "partial"))

	v, err := req.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "partial", v)

	// Nothing further arrives.
	v, err = req.Recv(50 * time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, RequestTimedOut, req.State())

	// The straggler still lands if the caller keeps listening.
	peer.reply(in, gosrf.NewResultMessage(trace, "late"),
		gosrf.NewStatusMessage(trace, gosrf.StatusComplete))
	v, err = req.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "late", v)
}

// Two concurrent calls on one session resolve to the correct streams for
// every interleaving of their responses on the wire.
func TestSequenceNumberDemux(t *testing.T) {
	interleavings := [][]int{
		{0, 0, 1, 1},
		{0, 1, 0, 1},
		{0, 1, 1, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 0},
		{1, 1, 0, 0},
	}

	for _, order := range interleavings {
		peer := newTestPeer(t)

		c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
		ses := c.Session("demux.test")

		reqA, err := ses.Request("demux.test.a")
		require.NoError(t, err)
		reqB, err := ses.Request("demux.test.b")
		require.NoError(t, err)

		inA := peer.take("demux.test")
		inB := peer.take("demux.test")
		traces := []uint64{inA.Body[0].ThreadTrace, inB.Body[0].ThreadTrace}
		values := []string{"for-a", "for-b"}

		sent := []int{0, 0}
		for _, which := range order {
			if sent[which] == 0 {
				peer.reply(inA, gosrf.NewResultMessage(traces[which], values[which]))
			} else {
				peer.reply(inA, gosrf.NewStatusMessage(traces[which], gosrf.StatusComplete))
			}
			sent[which]++
		}

		// Drain B first so A's messages must pass through the backlog.
		v, err := reqB.Recv(time.Second)
		require.NoError(t, err)
		require.Equal(t, "for-b", v, "interleaving %v", order)

		v, err = reqA.Recv(time.Second)
		require.NoError(t, err)
		require.Equal(t, "for-a", v, "interleaving %v", order)

		v, err = reqA.Recv(time.Second)
		require.NoError(t, err)
		require.Nil(t, v)
		require.Equal(t, RequestComplete, reqA.State())

		v, err = reqB.Recv(time.Second)
		require.NoError(t, err)
		require.Nil(t, v)
		require.Equal(t, RequestComplete, reqB.State())

		c.Close()
		peer.close()
	}
}

// Envelopes for another conversation observed while one session is
// receiving are buffered, not lost.
func TestCrossSessionBacklog(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses1 := c.Session("cross.test")
	ses2 := c.Session("cross.test")

	req1, err := ses1.Request("cross.test.m")
	require.NoError(t, err)
	req2, err := ses2.Request("cross.test.m")
	require.NoError(t, err)

	in1 := peer.take("cross.test")
	in2 := peer.take("cross.test")

	// Answer session 2 first, then session 1.
	peer.reply(in2, gosrf.NewResultMessage(in2.Body[0].ThreadTrace, "second"),
		gosrf.NewStatusMessage(in2.Body[0].ThreadTrace, gosrf.StatusComplete))
	peer.reply(in1, gosrf.NewResultMessage(in1.Body[0].ThreadTrace, "first"),
		gosrf.NewStatusMessage(in1.Body[0].ThreadTrace, gosrf.StatusComplete))

	v, err := req1.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "first", v)

	v, err = req2.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, "second", v)
}

func TestConnectPinsWorker(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("pin.test")

	done := make(chan error, 1)
	go func() {
		done <- ses.Connect()
	}()

	in := peer.take("pin.test")
	require.Equal(t, gosrf.Connect, in.Body[0].MType)
	peer.reply(in, gosrf.NewStatusMessage(in.Body[0].ThreadTrace, gosrf.StatusOk))

	require.NoError(t, <-done)
	require.True(t, ses.Connected())

	// The next request must go to the worker's private queue, not the
	// shared service queue.
	_, err := ses.Request("pin.test.m")
	require.NoError(t, err)

	tm, err := peer.bus.Recv(time.Second, "")
	require.NoError(t, err)
	require.NotNil(t, tm, "pinned request did not reach the worker queue")
	require.Equal(t, gosrf.Request, tm.Body[0].MType)

	require.NoError(t, ses.Disconnect())
	require.False(t, ses.Connected())
}

func TestMultiSessionFanout(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	m := NewMultiSession(c, "fan.test")

	id1, err := m.Request("fan.test.m", 1)
	require.NoError(t, err)
	id2, err := m.Request("fan.test.m", 2)
	require.NoError(t, err)
	require.Equal(t, 2, m.Outstanding())

	in1 := peer.take("fan.test")
	in2 := peer.take("fan.test")

	// Second call answers first.
	peer.reply(in2, gosrf.NewResultMessage(in2.Body[0].ThreadTrace, "r2"),
		gosrf.NewStatusMessage(in2.Body[0].ThreadTrace, gosrf.StatusComplete))
	peer.reply(in1, gosrf.NewResultMessage(in1.Body[0].ThreadTrace, "r1"),
		gosrf.NewStatusMessage(in1.Body[0].ThreadTrace, gosrf.StatusComplete))

	got := make(map[uint64]any)
	for !m.Complete() {
		id, v, err := m.Recv(time.Second)
		require.NoError(t, err)
		if v != nil {
			got[id] = v
		}
		if id == 0 && v == nil {
			break
		}
	}

	require.Equal(t, "r1", got[id1])
	require.Equal(t, "r2", got[id2])
}

// A zero timeout still polls the transport once, so an already-delivered
// reply is picked up without blocking.
func TestRecvZeroTimeoutPollsOnce(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("poll.test")
	req, err := ses.Request("poll.test.quick")
	require.NoError(t, err)

	in := peer.take("poll.test")
	trace := in.Body[0].ThreadTrace
	peer.reply(in, gosrf.NewResultMessage(trace, "ready"),
		gosrf.NewStatusMessage(trace, gosrf.StatusComplete))

	// The reply sits in our queue; a non-blocking Recv must find it.
	v, err := req.Recv(0)
	require.NoError(t, err)
	require.Equal(t, "ready", v)

	v, err = req.Recv(0)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, RequestComplete, req.State())
}

// A transport whose sends always fail.
type brokenTransport struct {
	addr *gosrf.BusAddress
}

func newBrokenTransport() *brokenTransport {
	return &brokenTransport{addr: gosrf.ClientAddress("osrf", "test.localhost")}
}

func (b *brokenTransport) Address() *gosrf.BusAddress { return b.addr }

func (b *brokenTransport) Send(tm *gosrf.TransportMessage) error {
	return errors.New("wire down")
}

func (b *brokenTransport) SendTo(recipient string, tm *gosrf.TransportMessage) error {
	return errors.New("wire down")
}

func (b *brokenTransport) Recv(timeout time.Duration, queue string) (*gosrf.TransportMessage, error) {
	return nil, nil
}

func (b *brokenTransport) Close() error { return nil }

// A failed send must not leave a request registered: no response will
// ever match it.
func TestFailedRequestLeavesNoEntry(t *testing.T) {
	c := NewClient(newBrokenTransport())
	defer c.Close()

	ses := c.Session("broken.test")
	_, err := ses.Request("broken.test.m")
	require.Error(t, err)
	require.Empty(t, ses.requests)
}

// Sessions stay registered with their client until Cleanup releases
// them; one-shot helpers clean up after themselves.
func TestSessionCleanupReleasesEntry(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	ses := c.Session("gone.test")
	require.Len(t, c.sessions, 1)
	ses.Cleanup()
	require.Empty(t, c.sessions)

	done := make(chan struct{})
	go func() {
		defer close(done)
		in := peer.take("gone.test")
		peer.reply(in, gosrf.NewResultMessage(in.Body[0].ThreadTrace, "pong"),
			gosrf.NewStatusMessage(in.Body[0].ThreadTrace, gosrf.StatusComplete))
	}()

	_, err := c.SendRecvOne("gone.test", "gone.test.ping", time.Second)
	require.NoError(t, err)
	<-done
	require.Empty(t, c.sessions, "one-shot call left its session behind")
}

func TestSendRecvOne(t *testing.T) {
	peer := newTestPeer(t)
	defer peer.close()

	c := NewClient(bus.ConnectMem("osrf", "test.localhost"))
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		in := peer.take("one.test")
		peer.reply(in, gosrf.NewResultMessage(in.Body[0].ThreadTrace, "pong"),
			gosrf.NewStatusMessage(in.Body[0].ThreadTrace, gosrf.StatusComplete))
	}()

	v, err := c.SendRecvOne("one.test", "one.test.ping", time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong", v)
	<-done
}
