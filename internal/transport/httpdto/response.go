package httpdto

import bsn_errors "bsn-realtime/pkg/errors"

// CodeUnauthorized is only used over HTTP; websocket auth failures close
// the socket instead of sending a frame.
const CodeUnauthorized = "unauthorized"

// Response wraps every HTTP body. Failures use the websocket error frame
// codes so clients handle one vocabulary.
type Response[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func OK[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

func Failure(message, code string) Response[any] {
	return Response[any]{Error: message, Code: code}
}

// FailureFrom classifies err without exposing its cause.
func FailureFrom(err error) Response[any] {
	return Failure(bsn_errors.FrameMessage(err), bsn_errors.FrameCode(err))
}

func (r Response[T]) WithRequestID(id string) Response[T] {
	r.RequestID = id
	return r
}
