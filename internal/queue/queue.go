package queue

import "context"

// Handler processes one kind of background job. OnFailure fires only after
// every retry is exhausted, so terminal failures stay visible to operators.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
	OnFailure(ctx context.Context, payload []byte, err error)
}

// Queue enqueues a unit of work and returns immediately with its job id.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload interface{}) (string, error)
}

// FuncHandler adapts plain functions to the Handler contract.
type FuncHandler struct {
	HandleFunc    func(ctx context.Context, payload []byte) error
	OnFailureFunc func(ctx context.Context, payload []byte, err error)
}

// Handle invokes the wrapped handle function.
func (f FuncHandler) Handle(ctx context.Context, payload []byte) error {
	return f.HandleFunc(ctx, payload)
}

// OnFailure invokes the wrapped failure hook, if any.
func (f FuncHandler) OnFailure(ctx context.Context, payload []byte, err error) {
	if f.OnFailureFunc != nil {
		f.OnFailureFunc(ctx, payload, err)
	}
}
