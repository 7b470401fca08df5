// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package wikichat

import (
	"context"

	"github.com/askwiki/wikichat/pkg/broker"
)

// Handler processes one decoded event. Returning an error marks the delivery
// as a transient failure subject to the retry policy; the handler must
// therefore tolerate being invoked up to maxRetries+1 times for the same
// logical message. Returning broker.RequeueError instead requeues the
// delivery for another consumer without entering the retry policy.
type Handler func(ctx context.Context, evt broker.Event, msg broker.Message) error

// Router maps the event_type field of decoded events to handlers. Events
// without a routed type fall through to the default handler.
type Router struct {
	routes   map[string]Handler
	fallback Handler
}

func NewRouter() *Router {
	return &Router{
		routes: make(map[string]Handler),
	}
}

// Add registers a handler for an event type.
func (r *Router) Add(eventType string, h Handler) {
	r.routes[eventType] = h
}

// Default registers the handler for events whose type is absent or unrouted.
func (r *Router) Default(h Handler) {
	r.fallback = h
}

func (r *Router) handlerFor(evt broker.Event) Handler {
	if h, ok := r.routes[evt.String("event_type")]; ok {
		return h
	}

	return r.fallback
}

func (r *Router) empty() bool {
	return len(r.routes) == 0 && r.fallback == nil
}
