package pipeline

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// Pipeline is a composed, immutable request pipeline.
type Pipeline struct {
	handler http.Handler
	logger  *zap.Logger
}

// ServeHTTP runs the request through the pipeline. Panics raised by
// components propagate to the caller; put middleware.Recovery first to turn
// them into 500 responses.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Execute runs the request through the pipeline and reports a panic that no
// component handled as a *PipelineFailure. Whatever was written to w before
// the panic stays written.
func (p *Pipeline) Execute(w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			failure := &PipelineFailure{
				Method: r.Method,
				Path:   r.URL.Path,
				Value:  rec,
				Stack:  debug.Stack(),
			}
			p.logger.Error("Pipeline failure",
				zap.String("method", failure.Method),
				zap.String("path", failure.Path),
				zap.Any("panic", rec),
			)
			err = failure
		}
	}()
	p.handler.ServeHTTP(w, r)
	return nil
}

// PipelineFailure is returned by Execute when a component panicked.
type PipelineFailure struct {
	Method string
	Path   string
	Value  any    // Value passed to panic
	Stack  []byte // Stack trace captured at recovery
}

// Error implements the error interface.
func (f *PipelineFailure) Error() string {
	return fmt.Sprintf("pipeline: unhandled panic serving %s %s: %v", f.Method, f.Path, f.Value)
}

// Unwrap returns the panic value when it is an error.
func (f *PipelineFailure) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
