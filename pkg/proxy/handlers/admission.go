package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/limits"
	"mercator-hq/broker/pkg/proxy"
	"mercator-hq/broker/pkg/proxy/middleware"
)

// Admitter decides whether a request may proceed. *limits.Engine
// implements it.
type Admitter interface {
	Decide(ctx context.Context, s limits.Scopes) (*limits.Decision, error)
}

// Gate resolves a caller's scope chain against the directory and runs the
// admission check. It is shared by the broker and discovery handlers.
type Gate struct {
	directory directory.Directory
	admitter  Admitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate creates a gate over dir and admitter.
func NewGate(dir directory.Directory, admitter Admitter) *Gate {
	return &Gate{
		directory: dir,
		admitter:  admitter,
		logger:    slog.Default().With("component", "proxy.admission"),
		now:       time.Now,
	}
}

// Authenticate returns the usable API key for token. Missing, unknown,
// inactive and expired tokens yield proxy.ErrUnauthorized. A directory
// failure yields directory.ErrUnavailable: authentication never fails open.
func (g *Gate) Authenticate(ctx context.Context, token string) (*directory.APIKey, error) {
	if token == "" {
		return nil, proxy.ErrUnauthorized
	}
	key, err := g.directory.FindAPIKey(ctx, token)
	if err != nil {
		return nil, unavailable("api key", err)
	}
	if !key.Usable(g.now()) {
		return nil, proxy.ErrUnauthorized
	}
	return key, nil
}

// Service returns the active service called name, or
// proxy.ErrServiceNotFound.
func (g *Gate) Service(ctx context.Context, name string) (*directory.Service, error) {
	if name == "" {
		return nil, proxy.ErrServiceNotFound
	}
	svc, err := g.directory.FindService(ctx, name)
	if err != nil {
		return nil, unavailable("service", err)
	}
	if svc == nil || !svc.Active {
		return nil, fmt.Errorf("%w: %s", proxy.ErrServiceNotFound, name)
	}
	return svc, nil
}

// OptionalService looks up name for use as an extra scope. Unknown names and
// lookup failures return nil.
func (g *Gate) OptionalService(ctx context.Context, name string) *directory.Service {
	svc, err := g.directory.FindService(ctx, name)
	if err != nil {
		g.logger.WarnContext(ctx, "service lookup failed, continuing without service scope",
			"service", name,
			"error", err,
		)
		return nil
	}
	if svc == nil || !svc.Active {
		return nil
	}
	return svc
}

// Endpoint resolves ref ("name" or "name@version") within svc. An unknown
// endpoint is proxy.ErrEndpointNotFound. A directory failure is logged and
// the request continues without the endpoint scope.
func (g *Gate) Endpoint(ctx context.Context, svc *directory.Service, ref string) (*directory.Endpoint, error) {
	ep, err := g.directory.FindEndpoint(ctx, svc.ID, ref)
	if err != nil {
		g.logger.WarnContext(ctx, "endpoint lookup failed, continuing without endpoint scope",
			"service", svc.Name,
			"endpoint", ref,
			"error", err,
		)
		return nil, nil
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", proxy.ErrEndpointNotFound, ref)
	}
	return ep, nil
}

// Admit runs the admission check for scopes. A denial is returned as a
// decision with Allowed false, not as an error.
func (g *Gate) Admit(ctx context.Context, scopes limits.Scopes) (*limits.Decision, error) {
	d, err := g.admitter.Decide(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if d.FailOpen {
		g.logger.WarnContext(ctx, "request admitted without usage counters")
	}
	return d, nil
}

// clientIP prefers the address resolved by ClientIPMiddleware.
func clientIP(r *http.Request) string {
	if ip := middleware.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return proxy.ClientIP(r, false)
}

func unavailable(what string, err error) error {
	if errors.Is(err, directory.ErrUnavailable) {
		return fmt.Errorf("%s lookup: %w", what, err)
	}
	return fmt.Errorf("%s lookup: %w: %v", what, directory.ErrUnavailable, err)
}
