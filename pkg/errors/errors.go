package bsn_errors

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Chat store errors
var (
	ErrNotParticipant  = errors.New("sender is not a participant of the chat")
	ErrChatNotFound    = errors.New("chat not found")
	ErrContentTooLarge = errors.New("content too large")
	ErrEmptyContent    = errors.New("content is empty")
)

// Frame error codes sent to websocket clients.
const (
	CodeForbidden   = "forbidden"
	CodeInvalid     = "invalid"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// FrameCode converts a component error into the code carried by an error frame.
// Raw driver and broker errors collapse to CodeInternal.
func FrameCode(err error) string {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotParticipant), errors.Is(err, ErrUnauthorized):
		return CodeForbidden
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrContentTooLarge), errors.Is(err, ErrEmptyContent):
		return CodeInvalid
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrChatNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrConflict), errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// FrameMessage is the client-facing text for an error. It never includes
// the wrapped cause.
func FrameMessage(err error) string {
	switch FrameCode(err) {
	case CodeForbidden:
		return "not permitted"
	case CodeInvalid:
		for _, e := range []error{ErrContentTooLarge, ErrEmptyContent} {
			if errors.Is(err, e) {
				return e.Error()
			}
		}
		return "invalid request"
	case CodeNotFound:
		return "not found"
	case CodeRateLimited:
		return "rate limited"
	case CodeUnavailable:
		return "temporarily unavailable"
	default:
		return "internal error"
	}
}
