package llm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Adapter translates a normalized request into one provider's native call and
// the provider's response back into a Result. Adapters never return raw
// provider errors; failures are mapped into provider-labeled Result messages.
type Adapter interface {
	// Provider returns the provider this adapter serves.
	Provider() Provider

	// Available reports whether the adapter holds a credential and can make
	// network calls. Call sites must check this before dispatching.
	Available() bool

	// Complete performs a buffered completion.
	Complete(ctx context.Context, req GenerationRequest) Result

	// CompleteStream performs a streaming completion. The chunk channel is
	// closed when the stream ends; at most one error is sent on the error
	// channel. Cancelling ctx aborts the underlying HTTP request.
	CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error)
}

// providerLabel maps providers to the label used in user-facing error text.
var providerLabel = map[Provider]string{
	ProviderOpenAI:    "OpenAI",
	ProviderAnthropic: "Anthropic",
	ProviderGoogle:    "Google",
	ProviderGroq:      "Groq",
}

// failureResult wraps a provider call error into the uniform user-facing
// message. The raw error never escapes to the caller.
func failureResult(p Provider, err error) Result {
	return Result{
		Kind:    ResultProviderError,
		Content: fmt.Sprintf("%s: %s. Please check your API key.", providerLabel[p], err.Error()),
	}
}

// unavailableAdapter stands in for a provider whose credential is absent.
// It never makes network calls.
type unavailableAdapter struct {
	provider Provider
	envVar   string
}

// NewUnavailableAdapter creates a stub adapter for a provider without a
// configured credential. Results name the environment variable to set.
func NewUnavailableAdapter(p Provider, envVar string) Adapter {
	return &unavailableAdapter{provider: p, envVar: envVar}
}

func (a *unavailableAdapter) Provider() Provider { return a.provider }

func (a *unavailableAdapter) Available() bool { return false }

func (a *unavailableAdapter) Complete(_ context.Context, _ GenerationRequest) Result {
	return Result{
		Kind: ResultConfigMissing,
		Content: fmt.Sprintf("%s models are unavailable: add %s to the server environment to enable them.",
			providerLabel[a.provider], a.envVar),
	}
}

func (a *unavailableAdapter) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 1)
	errChan := make(chan error, 1)
	contentChan <- a.Complete(ctx, req).Content
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

// newHTTPClient builds the shared HTTP client used by all adapters.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
