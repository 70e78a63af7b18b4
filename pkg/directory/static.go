package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// keyNamespace seeds deterministic API key IDs so counters keyed by an API key
// survive directory reloads.
var keyNamespace = uuid.MustParse("8f1f6c1e-3a57-4df1-9b59-2f3c0f1f6a10")

// Document is the on-disk YAML layout of a directory file.
type Document struct {
	APIKeys  []APIKey          `yaml:"api_keys"`
	Services []ServiceDocument `yaml:"services"`
}

// ServiceDocument is a service with its endpoints nested.
type ServiceDocument struct {
	Service   `yaml:",inline"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// ParseDocument decodes and validates a directory document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// normalize fills derived IDs and rejects duplicates.
func (d *Document) normalize() error {
	tokens := make(map[string]bool, len(d.APIKeys))
	for i := range d.APIKeys {
		k := &d.APIKeys[i]
		if k.Token == "" {
			return fmt.Errorf("%w: api_keys[%d]: token is required", ErrInvalidDocument, i)
		}
		if tokens[k.Token] {
			return fmt.Errorf("%w: api_keys[%d]: duplicate token", ErrInvalidDocument, i)
		}
		tokens[k.Token] = true
		if k.ID == "" {
			k.ID = uuid.NewSHA1(keyNamespace, []byte(k.Token)).String()
		}
	}

	names := make(map[string]bool, len(d.Services))
	for i := range d.Services {
		s := &d.Services[i]
		if s.Name == "" {
			return fmt.Errorf("%w: services[%d]: name is required", ErrInvalidDocument, i)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: services[%d]: duplicate service name %q", ErrInvalidDocument, i, s.Name)
		}
		names[s.Name] = true
		if s.ID == "" {
			s.ID = s.Name
		}

		seen := make(map[string]bool, len(s.Endpoints))
		for j := range s.Endpoints {
			e := &s.Endpoints[j]
			if e.Name == "" {
				return fmt.Errorf("%w: services[%d].endpoints[%d]: name is required", ErrInvalidDocument, i, j)
			}
			if strings.Contains(e.Name, "@") {
				return fmt.Errorf("%w: services[%d].endpoints[%d]: name must not contain '@'", ErrInvalidDocument, i, j)
			}
			ref := e.Name + "@" + e.Version
			if seen[ref] {
				return fmt.Errorf("%w: service %q: duplicate endpoint %s", ErrInvalidDocument, s.Name, ref)
			}
			seen[ref] = true
			e.ServiceID = s.ID
			if e.ID == "" {
				e.ID = s.ID + "/" + ref
			}
		}
	}
	return nil
}

// snapshot is an immutable index over one Document.
type snapshot struct {
	keys      map[string]*APIKey
	services  map[string]*Service
	ordered   []*Service
	endpoints map[string][]*Endpoint
}

func newSnapshot(doc *Document) *snapshot {
	s := &snapshot{
		keys:      make(map[string]*APIKey, len(doc.APIKeys)),
		services:  make(map[string]*Service, len(doc.Services)),
		endpoints: make(map[string][]*Endpoint, len(doc.Services)),
	}
	for i := range doc.APIKeys {
		k := doc.APIKeys[i]
		s.keys[k.Token] = &k
	}
	for i := range doc.Services {
		svc := doc.Services[i].Service
		s.services[svc.Name] = &svc
		s.ordered = append(s.ordered, &svc)
		for j := range doc.Services[i].Endpoints {
			e := doc.Services[i].Endpoints[j]
			s.endpoints[svc.ID] = append(s.endpoints[svc.ID], &e)
		}
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].Name < s.ordered[j].Name })
	return s
}

// Static is an in-memory Catalog. The whole index is swapped atomically on
// Replace so readers never observe a partially loaded document.
type Static struct {
	current atomic.Pointer[snapshot]
}

// NewStatic creates a Catalog over an already parsed document.
func NewStatic(doc *Document) (*Static, error) {
	if doc == nil {
		doc = &Document{}
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	s := &Static{}
	s.current.Store(newSnapshot(doc))
	return s, nil
}

// Replace swaps in a new document.
func (s *Static) Replace(doc *Document) error {
	if err := doc.normalize(); err != nil {
		return err
	}
	s.current.Store(newSnapshot(doc))
	return nil
}

// FindAPIKey implements Directory.
func (s *Static) FindAPIKey(_ context.Context, token string) (*APIKey, error) {
	k, ok := s.current.Load().keys[token]
	if !ok {
		return nil, nil
	}
	out := *k
	return &out, nil
}

// FindService implements Directory.
func (s *Static) FindService(_ context.Context, name string) (*Service, error) {
	svc, ok := s.current.Load().services[name]
	if !ok {
		return nil, nil
	}
	out := *svc
	return &out, nil
}

// FindEndpoint implements Directory. Without a version the first
// non-deprecated endpoint of that name wins, then the first declared one.
func (s *Static) FindEndpoint(_ context.Context, serviceID, name string) (*Endpoint, error) {
	name, version, versioned := strings.Cut(name, "@")

	var fallback *Endpoint
	for _, e := range s.current.Load().endpoints[serviceID] {
		if e.Name != name {
			continue
		}
		if versioned {
			if e.Version == version {
				out := *e
				return &out, nil
			}
			continue
		}
		if !e.Deprecated {
			out := *e
			return &out, nil
		}
		if fallback == nil {
			fallback = e
		}
	}
	if fallback == nil {
		return nil, nil
	}
	out := *fallback
	return &out, nil
}

// ListServices implements Lister. Services are returned sorted by name.
func (s *Static) ListServices(_ context.Context) ([]*Service, error) {
	snap := s.current.Load()
	out := make([]*Service, 0, len(snap.ordered))
	for _, svc := range snap.ordered {
		c := *svc
		out = append(out, &c)
	}
	return out, nil
}

// ListEndpoints implements Lister.
func (s *Static) ListEndpoints(_ context.Context, serviceID string) ([]*Endpoint, error) {
	eps := s.current.Load().endpoints[serviceID]
	out := make([]*Endpoint, 0, len(eps))
	for _, e := range eps {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// LoadFile reads and parses a directory document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrUnavailable, path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return doc, nil
}
