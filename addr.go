package gosrf

import (
	"fmt"
	"os"
	"strings"
)

// Every bus address lives under this namespace prefix.
const AddressNamespace = "opensrf"

/*
An address names one of three addressable roles on the bus. The compiled
string form doubles as the queue key the role drains.

	opensrf:router:<username>:<domain>
	opensrf:service:<username>:<domain>:<service>
	opensrf:client:<username>:<domain>:<hostname>:<pid>:<random>
*/
type AddressPurpose int

const (
	Router AddressPurpose = iota
	Service
	Client
)

var purpose_strings []string = []string{"router", "service", "client"}

func (p AddressPurpose) String() string {
	return purpose_strings[p]
}

func purposeFromString(s string) (AddressPurpose, error) {
	for i, ps := range purpose_strings {
		if ps == s {
			return AddressPurpose(i), nil
		}
	}
	return 0, fmt.Errorf("unknown address purpose: %s", s)
}

type BusAddress struct {
	purpose   AddressPurpose
	username  string
	domain    string
	remainder string

	// Compiled string form; refreshed by every setter.
	full string
}

/*
Parse a compiled address string. The first four colon-delimited tokens are
fixed (namespace:purpose:username:domain); anything after them is
purpose-specific and kept verbatim, so Parse and Compile round-trip.
*/
func ParseAddress(s string) (*BusAddress, error) {
	tokens := strings.Split(s, ":")

	if len(tokens) < 4 {
		return nil, fmt.Errorf("invalid bus address: %s", s)
	}
	if tokens[0] != AddressNamespace {
		return nil, fmt.Errorf("invalid bus address namespace: %s", s)
	}

	purpose, err := purposeFromString(tokens[1])
	if err != nil {
		return nil, fmt.Errorf("invalid bus address: %s: %s", s, err)
	}

	addr := &BusAddress{
		purpose:   purpose,
		username:  tokens[2],
		domain:    tokens[3],
		remainder: strings.Join(tokens[4:], ":"),
	}
	addr.compile()

	return addr, nil
}

// Address of the router drained by router processes on a domain.
func RouterAddress(username, domain string) *BusAddress {
	addr := &BusAddress{purpose: Router, username: username, domain: domain}
	addr.compile()
	return addr
}

// Address of the queue a service's worker pool drains on a domain.
func ServiceAddress(username, domain, service string) *BusAddress {
	addr := &BusAddress{purpose: Service, username: username, domain: domain, remainder: service}
	addr.compile()
	return addr
}

// Domain-agnostic form of a service address, used when the sender leaves
// routing to an intermediary.
func BareServiceAddress(service string) *BusAddress {
	return ServiceAddress("_", "_", service)
}

/*
Address of one connection's private reply queue. The remainder combines
hostname, pid and a random token so every connection in a process gets its
own queue.
*/
func ClientAddress(username, domain string) *BusAddress {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	addr := &BusAddress{purpose: Client, username: username, domain: domain}
	addr.remainder = fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), RandomToken(6))
	addr.compile()

	return addr
}

func (a *BusAddress) compile() {
	a.full = AddressNamespace + ":" + a.purpose.String() + ":" + a.username + ":" + a.domain
	if a.remainder != "" {
		a.full += ":" + a.remainder
	}
}

// The compiled string form, i.e. the queue key.
func (a *BusAddress) String() string {
	return a.full
}

func (a *BusAddress) Purpose() AddressPurpose {
	return a.purpose
}

func (a *BusAddress) Username() string {
	return a.username
}

func (a *BusAddress) Domain() string {
	return a.domain
}

func (a *BusAddress) Remainder() string {
	return a.remainder
}

// The service name; empty unless this is a service address.
func (a *BusAddress) Service() string {
	if a.purpose == Service {
		return a.remainder
	}
	return ""
}

func (a *BusAddress) IsRouter() bool {
	return a.purpose == Router
}

func (a *BusAddress) IsService() bool {
	return a.purpose == Service
}

func (a *BusAddress) IsClient() bool {
	return a.purpose == Client
}

func (a *BusAddress) SetUsername(u string) {
	a.username = u
	a.compile()
}

func (a *BusAddress) SetDomain(d string) {
	a.domain = d
	a.compile()
}

func (a *BusAddress) SetRemainder(r string) {
	a.remainder = r
	a.compile()
}

// The domain-qualified queue key for reaching svc from this address's side
// of the bus.
func (a *BusAddress) ServicePeer(svc string) string {
	return ServiceAddress(a.username, a.domain, svc).String()
}
