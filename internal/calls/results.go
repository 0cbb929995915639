package calls

import (
	"context"
	"errors"
)

// Customer and staff facing messages.
const (
	MsgUnavailable      = "currently unavailable"
	MsgAlreadyHandled   = "call already handled"
	MsgNotAuthorized    = "not authorized"
	MsgCallNotFound     = "call not found"
	MsgCallCreated      = "waiter has been notified"
	MsgCallAcknowledged = "call acknowledged"
	MsgCallCompleted    = "call completed"
	MsgCallCancelled    = "call cancelled"
)

// CreateResult is what a customer sees after calling a waiter. A blocked
// origin gets the same shape as a success; Blocked is never serialized.
type CreateResult struct {
	Success bool   `json:"success"`
	Call    *Call  `json:"call"`
	Message string `json:"message,omitempty"`
	Blocked bool   `json:"-"`
}

// TransitionResult is returned by the staff-side operations.
type TransitionResult struct {
	Success bool     `json:"success"`
	Call    *Call    `json:"call,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Message string   `json:"message,omitempty"`

	// Err is the domain error behind an unsuccessful result.
	Err error `json:"-"`
}

// CreateCall wraps Create in the result shape. The returned error is only
// set for infrastructure failures.
func (m *Manager) CreateCall(ctx context.Context, req CreateRequest) (CreateResult, error) {
	c, err := m.Create(ctx, req)
	switch {
	case err == nil:
		return CreateResult{Success: true, Call: &c, Message: MsgCallCreated}, nil
	case errors.Is(err, ErrBlockedOrigin):
		return CreateResult{Success: true, Message: MsgCallCreated, Blocked: true}, nil
	case errors.Is(err, ErrTableUnavailable):
		return CreateResult{Success: false, Message: MsgUnavailable}, nil
	default:
		return CreateResult{}, err
	}
}

func (m *Manager) AcknowledgeCall(ctx context.Context, callID, staffID string) (TransitionResult, error) {
	c, err := m.Acknowledge(ctx, callID, staffID)
	if err != nil {
		return failure(err)
	}
	return TransitionResult{Success: true, Call: &c, Message: MsgCallAcknowledged}, nil
}

func (m *Manager) CompleteCall(ctx context.Context, callID, staffID string) (TransitionResult, error) {
	c, metrics, err := m.Complete(ctx, callID, staffID)
	if err != nil {
		return failure(err)
	}
	return TransitionResult{Success: true, Call: &c, Metrics: &metrics, Message: MsgCallCompleted}, nil
}

func (m *Manager) CancelCall(ctx context.Context, req CancelRequest) (TransitionResult, error) {
	c, err := m.Cancel(ctx, req)
	if err != nil {
		return failure(err)
	}
	return TransitionResult{Success: true, Call: &c, Message: MsgCallCancelled}, nil
}

func failure(err error) (TransitionResult, error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return TransitionResult{Message: MsgAlreadyHandled, Err: ErrInvalidTransition}, nil
	case errors.Is(err, ErrNotAuthorized):
		return TransitionResult{Message: MsgNotAuthorized, Err: ErrNotAuthorized}, nil
	case errors.Is(err, ErrNotFound):
		return TransitionResult{Message: MsgCallNotFound, Err: ErrNotFound}, nil
	default:
		return TransitionResult{}, err
	}
}
