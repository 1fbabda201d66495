package live

import "context"

// Task is a unit of background work owned by a state. The owning state
// cancels it on exit; Cancel returns only after the work has returned.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	value  T
	err    error
}

// startTask runs fn on its own goroutine. then, when non-nil, is called
// with the result after done is closed, so a Cancel that is waiting on
// done never blocks behind then.
func startTask[T any](parent context.Context, fn func(ctx context.Context) (T, error), then func(T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		t.value, t.err = fn(ctx)
		cancel()
		close(t.done)
		if then != nil {
			then(t.value, t.err)
		}
	}()
	return t
}

// Cancel stops the task and waits for it to return. Safe on a nil Task.
func (t *Task[T]) Cancel() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// Done is closed when the task has returned.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result returns the task's outcome. Only valid after Done is closed.
func (t *Task[T]) Result() (T, error) {
	return t.value, t.err
}
