package limits

import (
	"fmt"

	"mercator-hq/broker/pkg/directory"
)

// ScopeKind names one level of the scope hierarchy.
type ScopeKind string

const (
	ScopeAPIKey   ScopeKind = "api_key"
	ScopeService  ScopeKind = "service"
	ScopeEndpoint ScopeKind = "endpoint"
	ScopeClientIP ScopeKind = "client_ip"
)

// DefaultLimitPriority is the order in which scopes are asked for a limit.
// The caller's own key overrides endpoint settings, which override the service.
var DefaultLimitPriority = []ScopeKind{ScopeAPIKey, ScopeEndpoint, ScopeService}

// Scopes is the scope chain of one request. Any record may be nil.
type Scopes struct {
	APIKey   *directory.APIKey
	Service  *directory.Service
	Endpoint *directory.Endpoint
	ClientIP string
}

// ThrottleEnabled reports whether any record in the chain has throttling on.
func (s Scopes) ThrottleEnabled() bool {
	return (s.APIKey != nil && s.APIKey.ThrottleEnabled) ||
		(s.Service != nil && s.Service.ThrottleEnabled) ||
		(s.Endpoint != nil && s.Endpoint.ThrottleEnabled)
}

// settings returns the throttle flag and limits of one scope level.
// ok is false when the scope is absent from the chain.
func (s Scopes) settings(kind ScopeKind) (enabled bool, l directory.Limits, ok bool) {
	switch kind {
	case ScopeAPIKey:
		if s.APIKey != nil {
			return s.APIKey.ThrottleEnabled, s.APIKey.Limits, true
		}
	case ScopeService:
		if s.Service != nil {
			return s.Service.ThrottleEnabled, s.Service.Limits, true
		}
	case ScopeEndpoint:
		if s.Endpoint != nil {
			return s.Endpoint.ThrottleEnabled, s.Endpoint.Limits, true
		}
	}
	return false, directory.Limits{}, false
}

// ResolvedLimit is an effective limit and the scope it came from.
type ResolvedLimit struct {
	Value  int64
	Source ScopeKind
}

// Resolved holds the effective limit of each window. Nil means unlimited.
type Resolved struct {
	Minute *ResolvedLimit
	Hour   *ResolvedLimit
	Day    *ResolvedLimit
}

// For returns the resolved limit of w.
func (r Resolved) For(w Window) *ResolvedLimit {
	switch w {
	case WindowMinute:
		return r.Minute
	case WindowHour:
		return r.Hour
	case WindowDay:
		return r.Day
	}
	return nil
}

func (r *Resolved) set(w Window, l *ResolvedLimit) {
	switch w {
	case WindowMinute:
		r.Minute = l
	case WindowHour:
		r.Hour = l
	case WindowDay:
		r.Day = l
	}
}

// Unlimited reports whether no window carries a limit.
func (r Resolved) Unlimited() bool {
	return r.Minute == nil && r.Hour == nil && r.Day == nil
}

// Resolver computes effective limits from a scope chain.
type Resolver struct {
	priority []ScopeKind
}

// NewResolver creates a resolver that consults scopes in the given order.
// An empty priority uses DefaultLimitPriority.
func NewResolver(priority []ScopeKind) (*Resolver, error) {
	if len(priority) == 0 {
		priority = DefaultLimitPriority
	}
	if err := validatePriority(priority, ScopeAPIKey, ScopeService, ScopeEndpoint); err != nil {
		return nil, fmt.Errorf("limit priority: %w", err)
	}
	return &Resolver{priority: append([]ScopeKind(nil), priority...)}, nil
}

// Resolve evaluates each window independently: the first scope in priority
// order with throttling enabled and a limit set for that window wins. The
// minute limit may therefore come from the API key while the day limit comes
// from the service.
func (r *Resolver) Resolve(s Scopes) Resolved {
	var out Resolved
	for _, w := range Windows {
		for _, kind := range r.priority {
			enabled, l, ok := s.settings(kind)
			if !ok || !enabled {
				continue
			}
			if v := w.limitOf(l); v != nil {
				out.set(w, &ResolvedLimit{Value: *v, Source: kind})
				break
			}
		}
	}
	return out
}

// validatePriority rejects unknown and duplicate kinds.
func validatePriority(priority []ScopeKind, allowed ...ScopeKind) error {
	seen := make(map[ScopeKind]bool, len(priority))
	for _, kind := range priority {
		known := false
		for _, a := range allowed {
			if kind == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown scope %q", ErrInvalidPriority, kind)
		}
		if seen[kind] {
			return fmt.Errorf("%w: duplicate scope %q", ErrInvalidPriority, kind)
		}
		seen[kind] = true
	}
	return nil
}

// ParsePriority converts configuration strings to scope kinds.
func ParsePriority(names []string) []ScopeKind {
	out := make([]ScopeKind, len(names))
	for i, n := range names {
		out[i] = ScopeKind(n)
	}
	return out
}
