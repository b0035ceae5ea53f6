package gosrf

import (
	"testing"
	"time"
)

func TestRandomTokenIsRandom(t *testing.T) {
	a := RandomToken(6)
	b := RandomToken(6)
	if a == b {
		t.Fatal("tokens are equal:", a, b)
	}
	if len(a) != 6 {
		t.Fail()
	}
}

func TestTimer(t *testing.T) {
	tr := NewTimer(50 * time.Millisecond)
	if tr.Done() {
		t.Fail()
	}
	if tr.Remaining() > 50*time.Millisecond {
		t.Fail()
	}

	time.Sleep(60 * time.Millisecond)
	if !tr.Done() {
		t.Fail()
	}
	if tr.Remaining() != 0 {
		t.Fail()
	}

	tr.Reset()
	if tr.Done() {
		t.Fail()
	}
}
