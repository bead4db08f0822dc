package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher is the single entry point for chat completion. It resolves the
// adapter for a request's model id, gates on credential availability, and
// guarantees that no provider failure escapes as anything but a Result.
type Dispatcher struct {
	registry *Registry
	adapters map[Provider]Adapter
}

// NewDispatcher creates a dispatcher over the given registry and adapter set.
// Adapters are injected so tests can substitute fakes.
func NewDispatcher(registry *Registry, adapters map[Provider]Adapter) *Dispatcher {
	return &Dispatcher{registry: registry, adapters: adapters}
}

// Registry returns the model registry the dispatcher routes with.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// resolve picks the adapter for a request, substituting the default model for
// empty or unroutable ids. Unknown model ids never fail the request.
func (d *Dispatcher) resolve(req *GenerationRequest) Adapter {
	if req.Model == "" {
		req.Model = d.registry.Default().ID
	}
	provider := d.registry.ProviderFor(req.Model)
	adapter, ok := d.adapters[provider]
	if !ok {
		slog.Warn("dispatch: no adapter for provider, using default", "provider", provider, "model", req.Model)
		req.Model = d.registry.Default().ID
		adapter = d.adapters[d.registry.Default().Provider]
	}
	return adapter
}

// Dispatch performs a buffered completion.
func (d *Dispatcher) Dispatch(ctx context.Context, req GenerationRequest) (result Result) {
	adapter := d.resolve(&req)
	if adapter == nil {
		return Result{Kind: ResultProviderError, Content: "No chat provider is configured."}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: adapter panic", "provider", adapter.Provider(), "panic", r)
			result = failureResult(adapter.Provider(), fmt.Errorf("internal adapter failure"))
		}
	}()

	// Unavailable adapters are stubs that answer with a configuration
	// message without touching the network.
	return adapter.Complete(ctx, req)
}

// DispatchStream performs a streaming completion. The chunk channel is a
// lazy, finite, non-restartable stream; the caller assembles the final
// content. For unavailable providers a single chunk carrying the
// configuration message is emitted.
func (d *Dispatcher) DispatchStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	req.Stream = true
	adapter := d.resolve(&req)
	if adapter == nil {
		contentChan := make(chan string, 1)
		errChan := make(chan error, 1)
		contentChan <- "No chat provider is configured."
		close(contentChan)
		close(errChan)
		return contentChan, errChan
	}
	return adapter.CompleteStream(ctx, req)
}

// Available reports whether the provider has a credentialed adapter.
func (d *Dispatcher) Available(p Provider) bool {
	adapter, ok := d.adapters[p]
	return ok && adapter.Available()
}

// FailureMessage renders a stream error as the user-facing text for the
// provider serving the given model.
func (d *Dispatcher) FailureMessage(model string, err error) string {
	return failureResult(d.registry.ProviderFor(model), err).Content
}
