// Package resources implements the MCP resources exposed by the server.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (workspace:///, agent:///, retry:///).
package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownResource is returned by Read for URIs that are not registered.
var ErrUnknownResource = errors.New("resources: unknown resource")

// HandlerFunc has the same shape as an mcp-go resource handler.
type HandlerFunc func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)

type entry struct {
	resource mcp.Resource
	handler  HandlerFunc
}

// Catalog maps resource URIs to handlers, preserving registration order.
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Add registers a resource. URIs must be unique.
func (c *Catalog) Add(res mcp.Resource, h HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[res.URI]; ok {
		return fmt.Errorf("resources: %s already registered", res.URI)
	}
	c.entries[res.URI] = entry{resource: res, handler: h}
	c.order = append(c.order, res.URI)
	return nil
}

// List returns resource definitions in registration order.
func (c *Catalog) List() []mcp.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]mcp.Resource, 0, len(c.order))
	for _, uri := range c.order {
		out = append(out, c.entries[uri].resource)
	}
	return out
}

// Read dispatches to the handler registered for req.Params.URI.
func (c *Catalog) Read(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	c.mu.RLock()
	e, ok := c.entries[req.Params.URI]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, req.Params.URI)
	}
	return e.handler(ctx, req)
}
