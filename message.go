package gosrf

import (
	"encoding/json"
	"fmt"
)

/*
The kind of one message inside a transport envelope. Connect/Disconnect
bracket a stateful session, Request invokes a method, Result carries one
streamed return value, Status carries a protocol-level outcome.
*/
type MessageType string

const (
	Connect    MessageType = "CONNECT"
	Request    MessageType = "REQUEST"
	Result     MessageType = "RESULT"
	Status     MessageType = "STATUS"
	Disconnect MessageType = "DISCONNECT"
)

func (t MessageType) valid() bool {
	switch t {
	case Connect, Request, Result, Status, Disconnect:
		return true
	}
	return false
}

/*
HTTP-like numeric outcome of a call or session step. Codes >= 300 denote
failure; StatusComplete terminates a call's response stream.
*/
type MessageStatus int

const (
	StatusContinue            MessageStatus = 100
	StatusOk                  MessageStatus = 200
	StatusAccepted            MessageStatus = 202
	StatusPartialComplete     MessageStatus = 204
	StatusComplete            MessageStatus = 205
	StatusPartial             MessageStatus = 206
	StatusRedirected          MessageStatus = 307
	StatusBadRequest          MessageStatus = 400
	StatusUnauthorized        MessageStatus = 401
	StatusForbidden           MessageStatus = 403
	StatusMethodNotFound      MessageStatus = 404
	StatusNotAllowed          MessageStatus = 405
	StatusServiceNotFound     MessageStatus = 406
	StatusTimeout             MessageStatus = 408
	StatusInternalServerError MessageStatus = 500
	StatusNotImplemented      MessageStatus = 501
	StatusVersionNotSupported MessageStatus = 505
)

var status_labels = map[MessageStatus]string{
	StatusContinue:            "Continue",
	StatusOk:                  "OK",
	StatusAccepted:            "Accepted",
	StatusPartialComplete:     "Partial Complete",
	StatusComplete:            "Request Complete",
	StatusPartial:             "Partial Response",
	StatusRedirected:          "Redirected",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusMethodNotFound:      "Method Not Found",
	StatusNotAllowed:          "Not Allowed",
	StatusServiceNotFound:     "Service Not Found",
	StatusTimeout:             "Timeout",
	StatusInternalServerError: "Internal Server Error",
	StatusNotImplemented:      "Not Implemented",
	StatusVersionNotSupported: "Version Not Supported",
}

func (s MessageStatus) Label() string {
	if l, ok := status_labels[s]; ok {
		return l
	}
	return "Unknown Status"
}

// Whether this status denotes a failed call.
func (s MessageStatus) Failed() bool {
	return s >= 300
}

// The payload of a Request message: a method name plus its positional
// parameters, decoded as generic JSON values.
type MethodCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func NewMethodCall(method string, params ...any) *MethodCall {
	if params == nil {
		params = []any{}
	}
	return &MethodCall{Method: method, Params: params}
}

// The payload of a Result message: one streamed return value.
type ResultPayload struct {
	Status  MessageStatus
	Content any
}

// The payload of a Status message.
type StatusPayload struct {
	Status MessageStatus
}

type resultJSON struct {
	Status     string        `json:"status"`
	StatusCode MessageStatus `json:"statusCode"`
	Content    any           `json:"content"`
}

type statusJSON struct {
	Status     string        `json:"status"`
	StatusCode MessageStatus `json:"statusCode"`
}

/*
One message within an envelope. ThreadTrace is the per-conversation sequence
number correlating this message with one outstanding call.
*/
type Message struct {
	MType       MessageType
	ThreadTrace uint64
	// *MethodCall for Request, *ResultPayload for Result, *StatusPayload
	// for Status, nil for Connect/Disconnect.
	Payload any
}

func NewRequestMessage(trace uint64, call *MethodCall) Message {
	return Message{MType: Request, ThreadTrace: trace, Payload: call}
}

func NewResultMessage(trace uint64, content any) Message {
	return Message{MType: Result, ThreadTrace: trace, Payload: &ResultPayload{Status: StatusOk, Content: content}}
}

func NewStatusMessage(trace uint64, status MessageStatus) Message {
	return Message{MType: Status, ThreadTrace: trace, Payload: &StatusPayload{Status: status}}
}

func NewConnectMessage(trace uint64) Message {
	return Message{MType: Connect, ThreadTrace: trace}
}

func NewDisconnectMessage(trace uint64) Message {
	return Message{MType: Disconnect, ThreadTrace: trace}
}

type messageJSON struct {
	Type        MessageType     `json:"type"`
	ThreadTrace uint64          `json:"threadTrace"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	mj := messageJSON{Type: m.MType, ThreadTrace: m.ThreadTrace}

	var body any
	switch p := m.Payload.(type) {
	case nil:
		body = nil
	case *MethodCall:
		body = p
	case *ResultPayload:
		body = resultJSON{Status: p.Status.Label(), StatusCode: p.Status, Content: p.Content}
	case *StatusPayload:
		body = statusJSON{Status: p.Status.Label(), StatusCode: p.Status}
	default:
		return nil, fmt.Errorf("unserializable message payload: %T", m.Payload)
	}

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		mj.Payload = raw
	}

	return json.Marshal(mj)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	if !mj.Type.valid() {
		return fmt.Errorf("unknown message type: %s", mj.Type)
	}

	m.MType = mj.Type
	m.ThreadTrace = mj.ThreadTrace
	m.Payload = nil

	switch mj.Type {
	case Request:
		call := new(MethodCall)
		if err := json.Unmarshal(mj.Payload, call); err != nil {
			return fmt.Errorf("malformed method call payload: %s", err)
		}
		m.Payload = call
	case Result:
		var rj resultJSON
		if err := json.Unmarshal(mj.Payload, &rj); err != nil {
			return fmt.Errorf("malformed result payload: %s", err)
		}
		m.Payload = &ResultPayload{Status: rj.StatusCode, Content: rj.Content}
	case Status:
		var sj statusJSON
		if err := json.Unmarshal(mj.Payload, &sj); err != nil {
			return fmt.Errorf("malformed status payload: %s", err)
		}
		m.Payload = &StatusPayload{Status: sj.StatusCode}
	}

	return nil
}

/*
The wire-level envelope, one JSON value per queue entry. To and From are
compiled address strings; Thread is the conversation id fixed for the life
of one client session; Body carries one or more messages so e.g. a Connect
and the first Request can travel together.
*/
type TransportMessage struct {
	To     string `json:"to"`
	From   string `json:"from"`
	Thread string `json:"thread"`
	XID    string `json:"osrf_xid,omitempty"`

	// Router processing directives; only set on router control traffic.
	RouterCommand string `json:"router_command,omitempty"`
	RouterClass   string `json:"router_class,omitempty"`
	RouterReply   string `json:"router_reply,omitempty"`

	Body []Message `json:"osrf_msg"`
}

func NewTransportMessage(to, from, thread string, body ...Message) *TransportMessage {
	return &TransportMessage{To: to, From: from, Thread: thread, Body: body}
}

func (tm *TransportMessage) Encode() ([]byte, error) {
	return json.Marshal(tm)
}

// Decode a queue entry back into an envelope. Malformed JSON or an empty
// destination is a protocol error.
func DecodeTransportMessage(data []byte) (*TransportMessage, error) {
	tm := new(TransportMessage)
	if err := json.Unmarshal(data, tm); err != nil {
		return nil, fmt.Errorf("malformed transport message: %s", err)
	}
	if tm.To == "" || tm.From == "" {
		return nil, fmt.Errorf("transport message without to/from address")
	}
	return tm, nil
}
