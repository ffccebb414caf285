package http

import (
	"net/http"
)

// Middleware wraps an http.Handler, following the standard net/http pattern.
type Middleware func(http.Handler) http.Handler

// Router defines the interface for HTTP routing. The abstraction keeps
// handler registration independent of the underlying mux.
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PUT(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group creates a route group with a prefix. Group middleware applies
	// to every route within the group.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use adds middleware applying to all subsequent routes.
	Use(middlewares ...Middleware)

	// With returns a new Router with the given middleware applied.
	With(middlewares ...Middleware) Router

	// Handler returns the http.Handler for use with http.Server.
	Handler() http.Handler

	// Walk iterates over all registered routes.
	Walk(fn func(method, path string, handler http.Handler) error) error
}

// Chain applies middlewares to a handler, first middleware outermost.
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
