package llm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records calls and replays canned results.
type fakeAdapter struct {
	provider  Provider
	result    Result
	chunks    []string
	streamErr error
	panics    bool

	calls       atomic.Int32
	streamCalls atomic.Int32
	lastReq     GenerationRequest
}

func (a *fakeAdapter) Provider() Provider { return a.provider }

func (a *fakeAdapter) Available() bool { return true }

func (a *fakeAdapter) Complete(_ context.Context, req GenerationRequest) Result {
	a.calls.Add(1)
	a.lastReq = req
	if a.panics {
		panic("boom")
	}
	return a.result
}

func (a *fakeAdapter) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	a.streamCalls.Add(1)
	a.lastReq = req
	contentChan := make(chan string, len(a.chunks))
	errChan := make(chan error, 1)
	go func() {
		defer close(contentChan)
		defer close(errChan)
		for _, chunk := range a.chunks {
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if a.streamErr != nil {
			errChan <- a.streamErr
		}
	}()
	return contentChan, errChan
}

func newTestDispatcher(adapters map[Provider]Adapter) *Dispatcher {
	return NewDispatcher(NewRegistry(), adapters)
}

func TestDispatchRoutesToProvider(t *testing.T) {
	openAI := &fakeAdapter{provider: ProviderOpenAI, result: Result{Kind: ResultOK, Content: "from openai"}}
	anthropic := &fakeAdapter{provider: ProviderAnthropic, result: Result{Kind: ResultOK, Content: "from anthropic"}}
	d := newTestDispatcher(map[Provider]Adapter{
		ProviderOpenAI:    openAI,
		ProviderAnthropic: anthropic,
	})

	result := d.Dispatch(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "claude-3-opus",
	})
	require.True(t, result.OK())
	assert.Equal(t, "from anthropic", result.Content)
	assert.Equal(t, int32(1), anthropic.calls.Load())
	assert.Equal(t, int32(0), openAI.calls.Load())
}

func TestDispatchEmptyModelUsesDefault(t *testing.T) {
	openAI := &fakeAdapter{provider: ProviderOpenAI, result: Result{Kind: ResultOK, Content: "ok"}}
	d := newTestDispatcher(map[Provider]Adapter{ProviderOpenAI: openAI})

	result := d.Dispatch(context.Background(), GenerationRequest{Messages: []Message{UserMessage("hi")}})
	require.True(t, result.OK())
	assert.Equal(t, "gpt-3.5-turbo", openAI.lastReq.Model)
}

func TestDispatchMissingCredentialNeverCallsNetwork(t *testing.T) {
	// The Anthropic slot holds a stub; a live fake sits behind OpenAI to prove
	// routing does not leak across providers.
	openAI := &fakeAdapter{provider: ProviderOpenAI, result: Result{Kind: ResultOK, Content: "ok"}}
	d := newTestDispatcher(map[Provider]Adapter{
		ProviderOpenAI:    openAI,
		ProviderAnthropic: NewUnavailableAdapter(ProviderAnthropic, "ANTHROPIC_API_KEY"),
	})

	result := d.Dispatch(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "claude-3-5-sonnet",
	})
	assert.Equal(t, ResultConfigMissing, result.Kind)
	assert.Contains(t, result.Content, "ANTHROPIC_API_KEY")
	assert.Equal(t, int32(0), openAI.calls.Load())
}

func TestDispatchRecoversAdapterPanic(t *testing.T) {
	d := newTestDispatcher(map[Provider]Adapter{
		ProviderOpenAI: &fakeAdapter{provider: ProviderOpenAI, panics: true},
	})

	result := d.Dispatch(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "gpt-4",
	})
	assert.Equal(t, ResultProviderError, result.Kind)
	assert.Contains(t, result.Content, "OpenAI")
	assert.Contains(t, result.Content, "Please check your API key.")
}

func TestDispatchStreamAssemblesChunks(t *testing.T) {
	openAI := &fakeAdapter{provider: ProviderOpenAI, chunks: []string{"Hel", "lo", "!"}}
	d := newTestDispatcher(map[Provider]Adapter{ProviderOpenAI: openAI})

	contentChan, errChan := d.DispatchStream(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "gpt-4",
	})

	var got string
	for chunk := range contentChan {
		got += chunk
	}
	assert.Equal(t, "Hello!", got)
	assert.NoError(t, <-errChan)
	assert.True(t, openAI.lastReq.Stream)
}

func TestDispatchStreamUnavailableEmitsConfigMessage(t *testing.T) {
	d := newTestDispatcher(map[Provider]Adapter{
		ProviderGoogle: NewUnavailableAdapter(ProviderGoogle, "GOOGLE_API_KEY"),
	})

	contentChan, _ := d.DispatchStream(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "gemini-1.5-pro",
	})

	var got string
	for chunk := range contentChan {
		got += chunk
	}
	assert.Contains(t, got, "GOOGLE_API_KEY")
}

func TestFailureMessageLabelsProvider(t *testing.T) {
	d := newTestDispatcher(nil)
	msg := d.FailureMessage("claude-3-opus", assert.AnError)
	assert.Contains(t, msg, "Anthropic: ")
	assert.Contains(t, msg, "Please check your API key.")
}
