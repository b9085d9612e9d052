package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

// ErrRetryLater asks the worker to put the task back in the queue without
// counting it as a failure (e.g. a per-shop lease is held by another worker).
var ErrRetryLater = errors.New("task: retry later")

// Handler executes one task kind. The returned value is stored as the task result.
type Handler interface {
	Handle(ctx context.Context, task *models.Task) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *models.Task) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, task *models.Task) (any, error) {
	return f(ctx, task)
}

// Registry maps task kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[enums.TaskKind]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[enums.TaskKind]Handler{}}
}

// Register binds a handler to a kind. Registering a kind twice is an error.
func (r *Registry) Register(kind enums.TaskKind, handler Handler) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid task kind %q", kind)
	}
	if handler == nil {
		return fmt.Errorf("handler for %s is nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler for %s already registered", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind enums.TaskKind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds lists registered kinds in a stable order.
func (r *Registry) Kinds() []enums.TaskKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]enums.TaskKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
