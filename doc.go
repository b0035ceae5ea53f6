/*
Gosrf is a client/server library for message-bus RPC. Services publish named,
type-checked methods; clients invoke them over a shared, list-based queue store
("the bus"). Transport is plain JSON, one envelope per queue entry, with a
conversation id and a per-call sequence number correlating concurrent calls
that share a single inbound queue.

Gosrf works with Services and Methods. One Server (i.e. a process draining a
service queue) serves exactly one Service, which exposes multiple Methods
(procedures). A method is a registered handler function receiving the worker,
a Session and the decoded call; the Session provides functions to stream
results and terminate the call with a status.

E.g.:

	Service opensrf.lock
		+ Method opensrf.lock.acquire
		+ Method opensrf.lock.release
		+ Method opensrf.lock.is_locked

Packages: bus (the queue transport), client (caller side), server (the worker
pool), log (leveled RPC logging), signals (shutdown/reload flags). This root
package holds the types both sides share: addresses, messages, envelopes.
*/
package gosrf
