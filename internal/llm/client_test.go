package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llamacli/llamacli/internal/history"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeServer serves /v1/chat/completions with the given handler and returns
// a client pointed at it.
func fakeServer(t *testing.T, timeout time.Duration, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest)) *OllamaClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewOllamaClient(Options{
		BaseURL: srv.URL + "/v1",
		Model:   "LlamaCLI",
		APIKey:  "ollama",
		Timeout: timeout,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return client
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "LlamaCLI",
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
	})
	assert.NoError(t, err)
}

func TestNewOllamaClient_Validation(t *testing.T) {
	_, err := NewOllamaClient(Options{Model: "m"})
	assert.Error(t, err)

	_, err = NewOllamaClient(Options{BaseURL: "http://localhost:11434/v1"})
	assert.Error(t, err)

	client, err := NewOllamaClient(Options{BaseURL: "http://localhost:11434/v1", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", client.model)
}

func TestSend_BuildsPromptInOrder(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := fakeServer(t, 0, func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		got = req
		writeCompletion(t, w, "find . -name '*.go' | wc -l")
	})

	prior := []history.Message{
		history.HumanMessage("Command: list files"),
		history.AIMessage("ls -la"),
	}

	resp, err := client.Send(context.Background(), "Command: count go files", prior)
	require.NoError(t, err)
	assert.Equal(t, "find . -name '*.go' | wc -l", resp)

	assert.Equal(t, "LlamaCLI", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, SystemPrompt, got.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, "Command: list files", got.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "ls -la", got.Messages[2].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[3].Role)
	assert.Equal(t, "Command: count go files", got.Messages[3].Content)
}

func TestSend_ReturnsResponseVerbatim(t *testing.T) {
	reply := "  ```bash\nls -la\n```\n"
	client := fakeServer(t, 0, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeCompletion(t, w, reply)
	})

	resp, err := client.Send(context.Background(), "Command: list files", nil)
	require.NoError(t, err)
	assert.Equal(t, reply, resp)
}

func TestSend_ServerError(t *testing.T) {
	calls := 0
	client := fakeServer(t, 0, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model 'LlamaCLI' not found","type":"api_error"}}`))
	})

	_, err := client.Send(context.Background(), "Command: list files", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm: chat completion failed")
	assert.Equal(t, 1, calls, "failed calls are not retried")
}

func TestSend_NoChoices(t *testing.T) {
	client := fakeServer(t, 0, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	_, err := client.Send(context.Background(), "Command: list files", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := fakeServer(t, 50*time.Millisecond, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	})
	// Registered after the server so it runs before srv.Close.
	t.Cleanup(func() { close(release) })

	start := time.Now()
	_, err := client.Send(context.Background(), "Command: list files", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBuildMessages_EmptyHistory(t *testing.T) {
	msgs := BuildMessages("Command: list files", nil)

	require.Len(t, msgs, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	assert.Equal(t, "Command: list files", msgs[1].Content)
}
