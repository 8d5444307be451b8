package browser

import (
	"context"

	"github.com/jun/gophdrive/explorer/internal/model"
)

// Result carries either the value of a finished operation or its error.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on its own goroutine. The returned channel delivers exactly one
// Result and is then closed.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// UploadTask tracks an upload running in the background. Progress is closed
// before the single Result is delivered on Done.
type UploadTask struct {
	Progress <-chan Progress
	Done     <-chan Result[*model.Item]
}

// Wait drains progress and returns the terminal result.
func (t *UploadTask) Wait() (*model.Item, error) {
	for range t.Progress {
	}
	r := <-t.Done
	return r.Value, r.Err
}
