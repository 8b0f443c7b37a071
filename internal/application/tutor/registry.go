package tutor

import (
	"fmt"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
)

// Registry maps handler tags to handlers. It is built once at startup and
// never modified, so it can be shared without locking.
type Registry struct {
	handlers map[session.HandlerTag]Handler
	general  Handler
}

// RegistryOptions tune generation for every handler.
type RegistryOptions struct {
	MaxTokens   int
	Temperature float64
}

// NewRegistry builds one handler per catalog subject plus support and general.
func NewRegistry(catalog *config.Catalog, provider llm.Provider, opts RegistryOptions) (*Registry, error) {
	if catalog == nil || provider == nil {
		return nil, fmt.Errorf("tutor: catalog and provider are required")
	}

	newHandler := func(tag session.HandlerTag, p Persona) *ModelHandler {
		return &ModelHandler{
			tag:         tag,
			persona:     p,
			provider:    provider,
			maxTokens:   opts.MaxTokens,
			temperature: opts.Temperature,
		}
	}

	r := &Registry{handlers: make(map[session.HandlerTag]Handler, len(catalog.Subjects)+2)}
	for i := range catalog.Subjects {
		s := &catalog.Subjects[i]
		tag := session.SubjectTag(s.Name)
		r.handlers[tag] = newHandler(tag, Persona{Role: s.Persona, Subject: s})
	}
	r.handlers[session.TagSupport] = newHandler(session.TagSupport, Persona{Role: catalog.SupportPersona})
	r.general = newHandler(session.TagGeneral, Persona{Role: catalog.GeneralPersona})
	r.handlers[session.TagGeneral] = r.general
	return r, nil
}

// NewRegistryFrom assembles a registry from ready handlers. Used in tests and
// for custom handlers. A general handler is required.
func NewRegistryFrom(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[session.HandlerTag]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Tag()] = h
		if h.Tag() == session.TagGeneral {
			r.general = h
		}
	}
	if r.general == nil {
		return nil, fmt.Errorf("tutor: general handler is required")
	}
	return r, nil
}

// Lookup returns the handler for tag.
func (r *Registry) Lookup(tag session.HandlerTag) (Handler, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}

// Resolve returns the handler for tag, or the general handler when the tag
// is not registered.
func (r *Registry) Resolve(tag session.HandlerTag) Handler {
	if h, ok := r.handlers[tag]; ok {
		return h
	}
	return r.general
}

// Tags lists registered tags.
func (r *Registry) Tags() []session.HandlerTag {
	out := make([]session.HandlerTag, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
