package events

import (
	"context"
	"fmt"
)

// HandlerFunc handles one kind of event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Router maps kinds to handlers. Kinds may also be ignored explicitly so
// that Missing can tell a forgotten kind from a deliberate no-op.
type Router struct {
	handlers map[Kind]HandlerFunc
	ignored  map[Kind]struct{}
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[Kind]HandlerFunc),
		ignored:  make(map[Kind]struct{}),
	}
}

func (r *Router) On(kind Kind, h HandlerFunc) *Router {
	r.handlers[kind] = h
	return r
}

func (r *Router) Ignore(kinds ...Kind) *Router {
	for _, k := range kinds {
		r.ignored[k] = struct{}{}
	}
	return r
}

// Route calls the handler registered for ev's kind, if any.
func (r *Router) Route(ctx context.Context, ev Event) error {
	h, ok := r.handlers[ev.Kind()]
	if !ok {
		return nil
	}
	return h(ctx, ev)
}

func (r *Router) Handles(kind Kind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Missing lists kinds that are neither handled nor ignored.
func (r *Router) Missing() []Kind {
	var out []Kind
	for _, k := range AllKinds() {
		if _, ok := r.handlers[k]; ok {
			continue
		}
		if _, ok := r.ignored[k]; ok {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Typed adapts a handler for one concrete event type.
func Typed[E Event](fn func(ctx context.Context, ev E) error) HandlerFunc {
	return func(ctx context.Context, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected event type %T for kind %s", ev, ev.Kind())
		}
		return fn(ctx, typed)
	}
}
