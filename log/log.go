package log

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"
)

const (
	// Log absolutely nothing
	LOGLEVEL_NONE int = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. by dropping a message without further consideration)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. returning a Method Not Found status)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation
	LOGLEVEL_INFO
	// Log everything
	LOGLEVEL_DEBUG
)

func init() {
	logger = log.New(os.Stderr, "gosrf ", logger_flags)
}

var logger *log.Logger
var loglevel int

const logger_flags = log.LstdFlags | log.Lmicroseconds

var loglevel_strings []string = []string{"[NON]", "[ERR]", "[WRN]", "[INF]", "[DBG]"}

func loglevel_to_string(ll int) string {
	return loglevel_strings[ll]
}

// Set the global RPC log level
func SetLoglevel(ll int) {
	loglevel = ll
}

// Performance-enhancer: Prevent unnecessary log calls
func IsLoggingEnabled(ll int) bool {
	return loglevel >= ll
}

func OSRF_log(ll int, what ...interface{}) {
	if ll <= loglevel {
		if xid := LogTrace(); xid != "" {
			logger.Printf("%s: [%s] %s", loglevel_to_string(ll), xid, fmt.Sprintln(what...))
		} else {
			logger.Printf("%s: %s", loglevel_to_string(ll), fmt.Sprintln(what...))
		}
	}
}

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

// Returns a short random alphanumeric string.
// This is used to assign special tokens to RPCs in order to track them across log lines.
func GetLogToken() string {
	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(rand.Int())
	}
	return string(str)
}

// The log trace is the per-request transaction id stamped on outbound
// envelopes (the osrf_xid field) so one call can be followed across the
// log files of every process it touches.

var log_trace atomic.Value

// Adopt the trace id of a message we are servicing.
func SetLogTrace(xid string) {
	log_trace.Store(xid)
}

func ClearLogTrace() {
	log_trace.Store("")
}

func LogTrace() string {
	if v := log_trace.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Mint a fresh trace id for a call that originates in this process.
func CreateLogTrace() string {
	return fmt.Sprintf("%x%d%s", time.Now().UnixMicro(), os.Getpid(), GetLogToken())
}
