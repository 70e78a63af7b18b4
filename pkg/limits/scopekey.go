package limits

import "fmt"

// DefaultCounterPriority picks the most specific available identity as the
// owner of a counter. It is configured separately from DefaultLimitPriority.
var DefaultCounterPriority = []ScopeKind{ScopeEndpoint, ScopeService, ScopeAPIKey, ScopeClientIP}

// ScopeKey identifies the owner of a usage counter.
type ScopeKey struct {
	Kind ScopeKind
	ID   string
}

// String renders the key as "kind:id".
func (k ScopeKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// KeySelector chooses the scope key that counters are stored under.
type KeySelector struct {
	priority []ScopeKind
}

// NewKeySelector creates a selector with the given order. An empty priority
// uses DefaultCounterPriority.
func NewKeySelector(priority []ScopeKind) (*KeySelector, error) {
	if len(priority) == 0 {
		priority = DefaultCounterPriority
	}
	if err := validatePriority(priority, ScopeAPIKey, ScopeService, ScopeEndpoint, ScopeClientIP); err != nil {
		return nil, fmt.Errorf("counter scope priority: %w", err)
	}
	return &KeySelector{priority: append([]ScopeKind(nil), priority...)}, nil
}

// Select returns the first scope in priority order present in s. Presence is
// all that matters: throttle flags and limits do not influence the choice.
func (k *KeySelector) Select(s Scopes) (ScopeKey, bool) {
	for _, kind := range k.priority {
		switch kind {
		case ScopeEndpoint:
			if s.Endpoint != nil {
				return ScopeKey{Kind: kind, ID: s.Endpoint.ID}, true
			}
		case ScopeService:
			if s.Service != nil {
				return ScopeKey{Kind: kind, ID: s.Service.ID}, true
			}
		case ScopeAPIKey:
			if s.APIKey != nil {
				return ScopeKey{Kind: kind, ID: s.APIKey.ID}, true
			}
		case ScopeClientIP:
			if s.ClientIP != "" {
				return ScopeKey{Kind: kind, ID: s.ClientIP}, true
			}
		}
	}
	return ScopeKey{}, false
}
