package bus

import (
	"strings"
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	conf := NewConfig("private.localhost")
	if conf.endpoint() != "127.0.0.1:6379" {
		t.Fatal("unexpected default endpoint:", conf.endpoint())
	}
	if conf.Domain() != "private.localhost" {
		t.Fail()
	}
}

func TestConfigBuilder(t *testing.T) {
	conf := NewConfig("d").Host("10.0.0.1").Port(6380).Username("osrf").Password("s3cret")
	if conf.endpoint() != "10.0.0.1:6380" {
		t.Fatal("unexpected endpoint:", conf.endpoint())
	}
	if conf.username != "osrf" || conf.password != "s3cret" {
		t.Fail()
	}
}

// The connection is lazy, so a Bus is constructible without a reachable
// queue store; its address must land in the configured domain.
func TestConnectAssignsClientAddress(t *testing.T) {
	b, err := Connect(NewConfig("private.localhost").Username("osrf"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.rdb.Close()

	addr := b.Address()
	if !addr.IsClient() {
		t.Fail()
	}
	if addr.Domain() != "private.localhost" || addr.Username() != "osrf" {
		t.Fatal("unexpected address:", addr.String())
	}
	if !strings.HasPrefix(addr.String(), "opensrf:client:osrf:private.localhost:") {
		t.Fatal("unexpected queue key:", addr.String())
	}
}
