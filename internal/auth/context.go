package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxStaffID ctxKey = iota
	ctxBusinessID
	ctxRole
)

func WithIdentity(ctx context.Context, staffID, businessID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxStaffID, staffID)
	ctx = context.WithValue(ctx, ctxBusinessID, businessID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func StaffID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxStaffID).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("staff_id not in context")
}

func BusinessID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxBusinessID).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("business_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxRole).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
