package directory

import (
	"context"
	"errors"
	"time"
)

// Limits holds the optional per-window request limits of a scope.
// A nil field means the window is unlimited at this scope.
type Limits struct {
	PerMinute *int64 `yaml:"requests_per_minute,omitempty" json:"requestsPerMinute,omitempty"`
	PerHour   *int64 `yaml:"requests_per_hour,omitempty" json:"requestsPerHour,omitempty"`
	PerDay    *int64 `yaml:"requests_per_day,omitempty" json:"requestsPerDay,omitempty"`
}

// APIKey is a caller credential.
type APIKey struct {
	ID              string     `yaml:"id" json:"id"`
	Token           string     `yaml:"token" json:"-"`
	Name            string     `yaml:"name,omitempty" json:"name,omitempty"`
	Active          bool       `yaml:"active" json:"active"`
	ExpiresAt       *time.Time `yaml:"expires_at,omitempty" json:"expiresAt,omitempty"`
	ThrottleEnabled bool       `yaml:"throttle_enabled,omitempty" json:"throttleEnabled"`
	Limits          Limits     `yaml:",inline" json:"limits"`
}

// Usable reports whether the key is active and not expired at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.Active {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Service is a named backend reachable through the broker.
type Service struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	Active          bool   `yaml:"active" json:"active"`
	ThrottleEnabled bool   `yaml:"throttle_enabled,omitempty" json:"throttleEnabled"`
	Limits          Limits `yaml:",inline" json:"limits"`
}

// Endpoint is a versioned operation of a Service.
type Endpoint struct {
	ID              string `yaml:"id" json:"id"`
	ServiceID       string `yaml:"-" json:"serviceId"`
	Name            string `yaml:"name" json:"name"`
	Version         string `yaml:"version" json:"version"`
	Deprecated      bool   `yaml:"deprecated,omitempty" json:"deprecated"`
	ThrottleEnabled bool   `yaml:"throttle_enabled,omitempty" json:"throttleEnabled"`
	Limits          Limits `yaml:",inline" json:"limits"`
}

// Directory resolves scope records. Lookups return (nil, nil) when the record
// does not exist; a non-nil error means the directory could not be consulted.
type Directory interface {
	FindAPIKey(ctx context.Context, token string) (*APIKey, error)
	FindService(ctx context.Context, name string) (*Service, error)
	// FindEndpoint accepts "name" or "name@version".
	FindEndpoint(ctx context.Context, serviceID, name string) (*Endpoint, error)
}

// Lister enumerates records for discovery calls.
type Lister interface {
	ListServices(ctx context.Context) ([]*Service, error)
	ListEndpoints(ctx context.Context, serviceID string) ([]*Endpoint, error)
}

// Catalog is a Directory that can also enumerate its records.
type Catalog interface {
	Directory
	Lister
}

var (
	// ErrUnavailable is returned when the backing source cannot be read.
	ErrUnavailable = errors.New("directory unavailable")

	// ErrInvalidDocument is returned when a directory document fails validation.
	ErrInvalidDocument = errors.New("invalid directory document")
)
