package gosrf

import (
	"math/rand"
	"time"
)

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string, e.g. for the random component
// of a client address.
func RandomToken(length int) string {
	str := make([]byte, length)
	for i := range str {
		str[i] = mapToChar(rand.Int())
	}
	return string(str)
}

/*
Countdown used to bound a series of blocking receives by one overall
duration. Remaining() shrinks as time passes; Reset() restarts the full
duration, e.g. when a keep-going status arrives mid-call.
*/
type Timer struct {
	duration time.Duration
	start    time.Time
}

func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: d, start: time.Now()}
}

func (t *Timer) Remaining() time.Duration {
	rem := t.duration - time.Since(t.start)
	if rem < 0 {
		return 0
	}
	return rem
}

func (t *Timer) Done() bool {
	return t.Remaining() == 0
}

func (t *Timer) Reset() {
	t.start = time.Now()
}
