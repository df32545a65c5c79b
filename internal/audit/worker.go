package audit

import "context"

// Worker drains queued attempts until the inbox is closed.
type Worker struct {
	write func(context.Context, LoginAttempt) error
	inbox <-chan LoginAttempt
}

func NewWorker(write func(context.Context, LoginAttempt) error, inbox <-chan LoginAttempt) *Worker {
	return &Worker{write: write, inbox: inbox}
}

// Run returns once the inbox is closed and empty. Write errors are logged by
// the write func and do not stop the worker.
func (w *Worker) Run() {
	ctx := context.Background()
	for attempt := range w.inbox {
		_ = w.write(ctx, attempt)
	}
}
