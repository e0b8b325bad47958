package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub_ReturnsScriptedResponsesInOrder(t *testing.T) {
	s := NewStub(
		StubResponse{Content: `{"a":1}`},
		StubResponse{Content: `{"a":2}`},
	)

	resp1, err := s.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp1.Content)

	resp2, err := s.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, resp2.Content)

	assert.Equal(t, 2, s.CallCount())
}

func TestStub_ExhaustedScriptErrors(t *testing.T) {
	s := NewStub(StubResponse{Content: "{}"})
	_, err := s.Complete(context.Background(), Request{})
	require.NoError(t, err)

	_, err = s.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call 2")
}

func TestStub_ScriptedError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStub(StubResponse{Err: boom})
	_, err := s.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}

func TestStub_ConcurrentCallsAreSafe(t *testing.T) {
	responses := make([]StubResponse, 10)
	for i := range responses {
		responses[i] = StubResponse{Content: "{}"}
	}
	s := NewStub(responses...)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Complete(context.Background(), Request{SchemaName: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, s.CallCount())
	assert.Len(t, s.Requests(), 10)
}

func TestStub_OnCompleteHook(t *testing.T) {
	var seen []int
	s := NewStub(StubResponse{Content: "{}"}, StubResponse{Content: "{}"})
	s.OnComplete = func(callIndex int, req Request) {
		seen = append(seen, callIndex)
	}

	_, _ = s.Complete(context.Background(), Request{})
	_, _ = s.Complete(context.Background(), Request{})

	assert.Equal(t, []int{0, 1}, seen)
}
