package gateway

import (
	"context"
	"strings"
)

type route struct {
	prefix string
	gw     Gateway
}

// Router dispatches requests to a transport by model id prefix.
type Router struct {
	routes   []route
	fallback Gateway
}

// NewRouter creates a router that sends unmatched models to fallback.
func NewRouter(fallback Gateway) *Router {
	return &Router{fallback: fallback}
}

// Route registers gw for model ids starting with prefix. The first
// registered matching prefix wins.
func (r *Router) Route(prefix string, gw Gateway) *Router {
	r.routes = append(r.routes, route{prefix: prefix, gw: gw})
	return r
}

// Call implements Gateway.
func (r *Router) Call(ctx context.Context, req Request) (*Response, error) {
	for _, rt := range r.routes {
		if rt.prefix != "" && strings.HasPrefix(req.Model, rt.prefix) {
			return rt.gw.Call(ctx, req)
		}
	}
	if r.fallback == nil {
		return nil, &Failure{Model: req.Model, Message: "no transport for model"}
	}
	return r.fallback.Call(ctx, req)
}
