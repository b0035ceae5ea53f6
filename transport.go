package gosrf

import "time"

// Block-forever receive timeout.
const WaitForever time.Duration = -1

/*
One connection to the queue store. A Transport is exclusively owned by a
single goroutine and never shared; every connection drains its own client
address queue plus, optionally, a shared service queue.

Recv timeout semantics: 0 returns immediately with whatever is available,
a negative value blocks until a message arrives, a positive value blocks up
to that duration and returns (nil, nil) on expiry. queue selects the key to
pop from; empty means the connection's own address.
*/
type Transport interface {
	Address() *BusAddress
	Send(tm *TransportMessage) error
	SendTo(recipient string, tm *TransportMessage) error
	Recv(timeout time.Duration, queue string) (*TransportMessage, error)
	Close() error
}
