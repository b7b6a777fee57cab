package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries the acting principal's identity and group
// memberships for the lifetime of an authenticated request. It is immutable
// after construction and safe for concurrent reads.
type RequestContext struct {
	PrincipalID   string
	Email         string
	TenantID      string
	Groups        []string
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	Locale        string
}

// Validate checks that all mandatory fields are present.
// PrincipalID and TenantID must be non-empty.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.PrincipalID == "" {
		errs = append(errs, fmt.Errorf("PrincipalID is required"))
	}
	if rc.TenantID == "" {
		errs = append(errs, fmt.Errorf("TenantID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasGroup returns true if the RequestContext contains the given group.
func (rc *RequestContext) HasGroup(group string) bool {
	for _, g := range rc.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// HasAnyGroup returns true if the RequestContext contains at least one of
// the given groups.
func (rc *RequestContext) HasAnyGroup(groups ...string) bool {
	for _, g := range groups {
		if rc.HasGroup(g) {
			return true
		}
	}
	return false
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns
// nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking
// if it is not present. This is safe to call in handlers that are guaranteed
// to run behind the authentication middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
