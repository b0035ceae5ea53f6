package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosrf/gosrf"
)

func TestMemBusSendRecv(t *testing.T) {
	a := ConnectMem("osrf", "test.localhost")
	b := ConnectMem("osrf", "test.localhost")
	defer a.Close()
	defer b.Close()

	tm := gosrf.NewTransportMessage(b.Address().String(), a.Address().String(), "t1",
		gosrf.NewRequestMessage(1, gosrf.NewMethodCall("echo", "hi")))
	require.NoError(t, a.Send(tm))

	got, err := b.Recv(time.Second, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "t1", got.Thread)
	require.Equal(t, a.Address().String(), got.From)
}

func TestMemBusNonBlockingRecv(t *testing.T) {
	b := ConnectMem("osrf", "test.localhost")
	defer b.Close()

	got, err := b.Recv(0, "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemBusRecvTimeout(t *testing.T) {
	b := ConnectMem("osrf", "test.localhost")
	defer b.Close()

	before := time.Now()
	got, err := b.Recv(50*time.Millisecond, "")
	require.NoError(t, err)
	require.Nil(t, got)
	require.GreaterOrEqual(t, time.Since(before), 50*time.Millisecond)
}

func TestMemBusFIFO(t *testing.T) {
	a := ConnectMem("osrf", "test.localhost")
	b := ConnectMem("osrf", "test.localhost")
	defer a.Close()
	defer b.Close()

	for i := uint64(1); i <= 5; i++ {
		tm := gosrf.NewTransportMessage(b.Address().String(), a.Address().String(), "t",
			gosrf.NewStatusMessage(i, gosrf.StatusOk))
		require.NoError(t, a.Send(tm))
	}

	for i := uint64(1); i <= 5; i++ {
		got, err := b.Recv(time.Second, "")
		require.NoError(t, err)
		require.Equal(t, i, got.Body[0].ThreadTrace)
	}
}

// Malformed entries are dropped; the next valid one is still delivered.
func TestMemBusDropsMalformed(t *testing.T) {
	b := ConnectMem("osrf", "test.localhost")
	defer b.Close()

	memQueue(b.Address().String()) <- []byte("not json")

	tm := gosrf.NewTransportMessage(b.Address().String(), "opensrf:client:osrf:d:h:1:x", "t",
		gosrf.NewStatusMessage(1, gosrf.StatusOk))
	require.NoError(t, b.SendTo(b.Address().String(), tm))

	got, err := b.Recv(time.Second, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "t", got.Thread)
}

// Two consumers draining one service queue each see a given entry at most
// once.
func TestMemBusSharedQueueSingleDelivery(t *testing.T) {
	sender := ConnectMem("osrf", "test.localhost")
	c1 := ConnectMem("osrf", "test.localhost")
	c2 := ConnectMem("osrf", "test.localhost")
	defer sender.Close()
	defer c1.Close()
	defer c2.Close()

	svc := gosrf.ServiceAddress("osrf", "test.localhost", "opensrf.fifo").String()
	for i := uint64(0); i < 10; i++ {
		tm := gosrf.NewTransportMessage(svc, sender.Address().String(), "t",
			gosrf.NewStatusMessage(i, gosrf.StatusOk))
		require.NoError(t, sender.Send(tm))
	}

	seen := make(map[uint64]int)
	for i := 0; i < 10; i++ {
		var got *gosrf.TransportMessage
		var err error
		if i%2 == 0 {
			got, err = c1.Recv(time.Second, svc)
		} else {
			got, err = c2.Recv(time.Second, svc)
		}
		require.NoError(t, err)
		require.NotNil(t, got)
		seen[got.Body[0].ThreadTrace]++
	}

	for trace, count := range seen {
		require.Equal(t, 1, count, "trace %d delivered %d times", trace, count)
	}
}
