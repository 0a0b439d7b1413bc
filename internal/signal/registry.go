package signal

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Registry is the ordered, immutable list of sources. It is safe for concurrent use.
type Registry struct {
	sources []Source
	byKey   map[string]Source
	headers map[ResourceType][]*HTTPHeader
}

func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{
		sources: make([]Source, 0, len(sources)),
		byKey:   make(map[string]Source, len(sources)),
		headers: make(map[ResourceType][]*HTTPHeader),
	}
	for _, source := range sources {
		if source == nil {
			return nil, errors.New("nil signal source")
		}
		key := source.Info().Key
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("signal source %q has an empty key", source.Info().Title)
		}
		if _, exists := r.byKey[key]; exists {
			return nil, fmt.Errorf("duplicate signal source key %q", key)
		}
		if header, ok := source.(*HTTPHeader); ok {
			if _, valid := ParseResourceType(string(header.Resource)); !valid {
				return nil, fmt.Errorf("signal source %q: unknown resource type %q", key, header.Resource)
			}
			r.headers[header.Resource] = append(r.headers[header.Resource], header)
		}
		r.sources = append(r.sources, source)
		r.byKey[key] = source
	}
	return r, nil
}

func MustRegistry(sources ...Source) *Registry {
	r, err := NewRegistry(sources...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Len() int { return len(r.sources) }

// All yields the sources in registry order.
func (r *Registry) All() iter.Seq[Source] {
	return slices.Values(r.sources)
}

func (r *Registry) Lookup(key string) (Source, bool) {
	source, ok := r.byKey[key]
	return source, ok
}

// HeaderSources returns the header sources read from subresources of the given type.
func (r *Registry) HeaderSources(resource ResourceType) []*HTTPHeader {
	return r.headers[resource]
}

// ClientHintHeaders lists the header names the page must request through Accept-CH.
func (r *Registry) ClientHintHeaders() []string {
	var names []string
	for _, source := range r.sources {
		if header, ok := source.(*HTTPHeader); ok && header.ClientHint && !slices.Contains(names, header.HeaderName) {
			names = append(names, header.HeaderName)
		}
	}
	return names
}

// MeanRequests estimates how many probe requests one page view issues: the activation requests
// plus one header probe per resource type.
func (r *Registry) MeanRequests() float64 {
	total := float64(len(resourceTypes))
	for _, source := range r.sources {
		total += source.MeanRequests()
	}
	return total
}

// Summaries describes every source against the resolved signals, in registry order.
func (r *Registry) Summaries(all Collection) []Summary {
	out := make([]Summary, 0, len(r.sources))
	for _, source := range r.sources {
		meta := source.Info()
		value, present := all[meta.Key]
		summary := source.Describe(value, present)
		summary.Key = meta.Key
		summary.Title = meta.Title
		summary.Kind = source.Kind()
		summary.Discarded = meta.Discarded(all)
		out = append(out, summary)
	}
	return out
}
