package threadpool

import (
	"context"
	"fmt"
)

// ResultHandler post-processes results on a watcher goroutine.
// Handlers run in the order they were configured; an error or panic in one
// is logged and does not stop the next.
type ResultHandler interface {
	Handle(ctx context.Context, result JobResult) error
}

// ResultHandlerFunc adapts a function to ResultHandler.
type ResultHandlerFunc func(ctx context.Context, result JobResult) error

// Handle implements ResultHandler
func (f ResultHandlerFunc) Handle(ctx context.Context, result JobResult) error {
	return f(ctx, result)
}

// namedHandler caches the metrics label of a handler.
type namedHandler struct {
	name string
	ResultHandler
}

func nameHandler(h ResultHandler) namedHandler {
	if n, ok := h.(interface{ Name() string }); ok {
		return namedHandler{name: n.Name(), ResultHandler: h}
	}
	return namedHandler{name: fmt.Sprintf("%T", h), ResultHandler: h}
}

func runHandler(ctx context.Context, h ResultHandler, result JobResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return h.Handle(ctx, result)
}
