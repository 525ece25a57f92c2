package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/domain/chat"
	domainmodel "bastion-server/internal/domain/model"
	"bastion-server/internal/utils/platformerrors"
)

var testModel = domainmodel.Model{ID: "gpt-5-mini", ProviderID: domainmodel.ProviderOpenAI}

func newTestRegistry(t *testing.T, handler http.HandlerFunc) *Registry {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRegistryFromSettings(map[string]ProviderSettings{
		domainmodel.ProviderOpenAI: {
			ID:          domainmodel.ProviderOpenAI,
			BaseURL:     server.URL + "/v1",
			Headers:     map[string]string{"Authorization": "Bearer test"},
			MetadataKey: "openai",
		},
	}, 0)
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, event := range events {
		fmt.Fprintf(w, "data: %s\n\n", event)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestStreamStepText(t *testing.T) {
	var captured openai.ChatCompletionRequest
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		writeSSE(w,
			`{"id":"resp_1","choices":[{"index":0,"delta":{"reasoning_content":"thinking"}}]}`,
			`{"id":"resp_1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"resp_1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"id":"resp_1","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15,"completion_tokens_details":{"reasoning_tokens":3},"prompt_tokens_details":{"cached_tokens":2}}}`,
		)
	})

	var deltas []chat.StreamDelta
	result, err := registry.StreamStep(context.Background(), chat.StepRequest{
		Model:    testModel,
		Messages: []chat.ModelMessage{{Role: chat.RoleSystem, Content: "sys"}, {Role: chat.RoleUser, Content: "hi"}},
	}, func(delta chat.StreamDelta) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, captured.Stream)
	require.NotNil(t, captured.StreamOptions)
	assert.True(t, captured.StreamOptions.IncludeUsage)
	assert.Len(t, captured.Messages, 2)

	assert.Equal(t, []chat.StreamDelta{{Reasoning: "thinking"}, {Text: "Hel"}, {Text: "lo"}}, deltas)
	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, "thinking", result.Reasoning)
	assert.Equal(t, "stop", result.FinishReason)
	require.NotNil(t, result.Usage)
	assert.EqualValues(t, 15, result.Usage.TotalTokens)
	require.NotNil(t, result.Usage.ReasoningTokens)
	assert.EqualValues(t, 3, *result.Usage.ReasoningTokens)

	key, md := chat.ExtractProviderMetadata(result.ProviderMetadata, "openai")
	assert.Equal(t, "openai", key)
	require.NotNil(t, md)
	assert.Equal(t, "resp_1", *md.ResponseID)
	assert.EqualValues(t, 2, *md.CachedPromptTokens)
}

func TestStreamStepToolCalls(t *testing.T) {
	var captured openai.ChatCompletionRequest
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		writeSSE(w,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"readFile","arguments":"{\"ke"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"y\":\"a.txt\"}"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"writeFile","arguments":""}}]},"finish_reason":"tool_calls"}]}`,
		)
	})

	result, err := registry.StreamStep(context.Background(), chat.StepRequest{
		Model:    testModel,
		Messages: []chat.ModelMessage{{Role: chat.RoleUser, Content: "read a.txt"}},
		Tools:    []chat.ToolDefinition{{Name: "readFile", Description: "read", Parameters: map[string]any{"type": "object"}}},
	}, func(chat.StreamDelta) error { return nil })
	require.NoError(t, err)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "readFile", captured.Tools[0].Function.Name)

	assert.Equal(t, "tool-calls", result.FinishReason)
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, chat.ToolCall{ID: "call_a", Name: "readFile", Arguments: `{"key":"a.txt"}`}, result.ToolCalls[0])
	assert.Equal(t, chat.ToolCall{ID: "call_b", Name: "writeFile", Arguments: "{}"}, result.ToolCalls[1])
}

func TestStreamStepProviderError(t *testing.T) {
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})

	_, err := registry.StreamStep(context.Background(), chat.StepRequest{Model: testModel}, func(chat.StreamDelta) error { return nil })
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestStreamStepInBandError(t *testing.T) {
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"error":{"message":"context length exceeded"}}`)
	})

	_, err := registry.StreamStep(context.Background(), chat.StepRequest{Model: testModel}, func(chat.StreamDelta) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestStreamStepStopsWhenCallbackFails(t *testing.T) {
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"choices":[{"index":0,"delta":{"content":"a"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"b"}}]}`,
		)
	})

	stop := fmt.Errorf("client went away")
	calls := 0
	_, err := registry.StreamStep(context.Background(), chat.StepRequest{Model: testModel}, func(chat.StreamDelta) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamStepUnknownProvider(t *testing.T) {
	registry := NewRegistryFromSettings(nil, 0)
	_, err := registry.StreamStep(context.Background(), chat.StepRequest{Model: testModel}, nil)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestCompleteJSONMode(t *testing.T) {
	var captured openai.ChatCompletionRequest
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"questions\":[]}"}}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	})

	result, err := registry.Complete(context.Background(), chat.CompletionRequest{
		Model:     testModel,
		Messages:  []chat.ModelMessage{{Role: chat.RoleUser, Content: "q"}},
		JSONMode:  true,
		MaxTokens: 512,
	})
	require.NoError(t, err)
	assert.False(t, captured.Stream)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, captured.ResponseFormat.Type)
	assert.Equal(t, 512, captured.MaxCompletionTokens)
	assert.Equal(t, `{"questions":[]}`, result.Content)
	assert.EqualValues(t, 6, result.Usage.TotalTokens)
}

func TestGenerateImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	t.Run("base64", func(t *testing.T) {
		registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/images/generations", r.URL.Path)
			var req openai.ImageRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "a cat", req.Prompt)
			assert.Equal(t, "1024x1024", req.Size)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(png))
		})
		image, err := registry.GenerateImage(context.Background(), testModel, "a cat", "1024x1024")
		require.NoError(t, err)
		assert.Equal(t, png, image.Data)
		assert.Equal(t, "image/png", image.MediaType)
	})

	t.Run("url", func(t *testing.T) {
		var serverURL string
		registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/download.png") {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write(png)
				return
			}
			serverURL = "http://" + r.Host
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"created":1,"data":[{"url":%q}]}`, serverURL+"/download.png")
		})
		image, err := registry.GenerateImage(context.Background(), testModel, "a cat", "1024x1024")
		require.NoError(t, err)
		assert.Equal(t, png, image.Data)
		assert.Equal(t, "image/png", image.MediaType)
	})

	t.Run("empty", func(t *testing.T) {
		registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
		})
		_, err := registry.GenerateImage(context.Background(), testModel, "a cat", "1024x1024")
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	})
}

func TestToOpenAIMessages(t *testing.T) {
	messages := toOpenAIMessages([]chat.ModelMessage{
		{Role: chat.RoleUser, Content: "look", Files: []chat.FileRef{
			{MediaType: "image/png", URL: "data:image/png;base64,AAAA"},
			{MediaType: "application/pdf", Filename: "report.pdf", URL: "https://files.example.com/report.pdf"},
		}},
		{Role: chat.RoleAssistant, Reasoning: "only reasoning"},
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "c1", Name: "readFile", Arguments: "{}"}}},
		{Role: chat.RoleTool, ToolCallID: "c1", ToolName: "readFile", Content: `{"state":"ok"}`},
	})

	require.Len(t, messages, 3)
	require.Len(t, messages[0].MultiContent, 3)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, messages[0].MultiContent[1].Type)
	assert.Equal(t, "[report.pdf](https://files.example.com/report.pdf)", messages[0].MultiContent[2].Text)
	assert.Equal(t, "c1", messages[1].ToolCalls[0].ID)
	assert.Equal(t, openai.ChatMessageRoleTool, messages[2].Role)
	assert.Equal(t, "c1", messages[2].ToolCallID)
}
