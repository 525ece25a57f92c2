package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/utils/platformerrors"
)

const (
	dataPrefix           = "data:"
	doneMarker           = "[DONE]"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

// ChoiceDelta carries reasoning_content, which go-openai's delta type does not decode for every
// provider.
type ChoiceDelta struct {
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content"`
	Reasoning        string            `json:"reasoning"`
	ToolCalls        []openai.ToolCall `json:"tool_calls,omitempty"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        ChoiceDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// StreamChunk is one decoded "data:" event.
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *openai.Usage  `json:"usage"`
}

// StreamedCompletion is the accumulated result of a streamed completion.
type StreamedCompletion struct {
	ID           string
	Content      string
	Reasoning    string
	ToolCalls    []openai.ToolCall
	FinishReason string
	Usage        *openai.Usage
}

type toolCallAccumulator struct {
	ID        string
	Type      string
	Index     int
	Name      string
	Arguments strings.Builder
}

// ChatCompletionClient talks the OpenAI chat completion and image wire format to one provider.
type ChatCompletionClient struct {
	client   *resty.Client
	settings ProviderSettings
	name     string
}

func NewChatCompletionClient(client *resty.Client, settings ProviderSettings) *ChatCompletionClient {
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	return &ChatCompletionClient{
		client:   client,
		settings: settings,
		name:     settings.ID,
	}
}

func (c *ChatCompletionClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	request.Stream = false
	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint(request.Model, "/chat/completions"))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "chat completion request failed")
	}
	if resp.IsError() {
		return nil, c.errorFromBody(ctx, resp.StatusCode(), resp.Bytes(), "chat completion request failed")
	}
	return &respBody, nil
}

// StreamChatCompletion posts a streaming request and calls onChunk for every decoded event. It
// returns the accumulated completion once the provider sends [DONE] or closes the stream.
func (c *ChatCompletionClient) StreamChatCompletion(ctx context.Context, request openai.ChatCompletionRequest, onChunk func(StreamChunk) error) (*StreamedCompletion, error) {
	request.Stream = true
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	resp, err := c.prepareRequest(ctx).
		SetBody(request).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetDoNotParseResponse(true).
		Post(c.endpoint(request.Model, "/chat/completions"))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming request failed")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "streaming request failed: empty response body", nil, "f657e2fb-bdd8-4270-ae88-5b615812d4c5")
	}
	defer func() {
		if closeErr := resp.RawResponse.Body.Close(); closeErr != nil {
			log := logger.GetLogger()
			log.Error().Err(closeErr).Str("client", c.name).Msg("unable to close response body")
		}
	}()
	if resp.IsError() {
		body, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 64*1024))
		return nil, c.errorFromBody(ctx, resp.StatusCode(), body, "streaming request failed")
	}

	return c.readStream(ctx, resp.RawResponse.Body, onChunk)
}

func (c *ChatCompletionClient) readStream(ctx context.Context, body io.Reader, onChunk func(StreamChunk) error) (*StreamedCompletion, error) {
	var content, reasoning strings.Builder
	toolCalls := map[int]*toolCallAccumulator{}
	result := &StreamedCompletion{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, found := strings.CutPrefix(scanner.Text(), dataPrefix)
		if !found {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == doneMarker {
			break
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if apiErr := decodeStreamError(data); apiErr != "" {
				return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, apiErr, nil, "d017a315-8527-4b2b-9335-c6f9d684c51f")
			}
			log := logger.GetLogger()
			log.Warn().Err(err).Str("client", c.name).Msg("failed to parse stream chunk JSON")
			continue
		}
		if len(chunk.Choices) == 0 && chunk.Usage == nil {
			if apiErr := decodeStreamError(data); apiErr != "" {
				return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, apiErr, nil, "9441f835-9e55-460e-aee2-fcae857e41ba")
			}
		}

		if chunk.ID != "" && result.ID == "" {
			result.ID = chunk.ID
		}
		if chunk.Usage != nil {
			result.Usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			reasoning.WriteString(choice.Delta.ReasoningContent)
			reasoning.WriteString(choice.Delta.Reasoning)
			for i := range choice.Delta.ToolCalls {
				accumulateToolCall(&choice.Delta.ToolCalls[i], toolCalls)
			}
			if choice.FinishReason != "" {
				result.FinishReason = choice.FinishReason
			}
		}

		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to read stream")
	}

	result.Content = content.String()
	result.Reasoning = reasoning.String()
	result.ToolCalls = buildToolCalls(toolCalls)
	if len(result.ToolCalls) > 0 && result.FinishReason == "" {
		result.FinishReason = string(openai.FinishReasonToolCalls)
	}
	return result, nil
}

// CreateImage calls the image generation endpoint.
func (c *ChatCompletionClient) CreateImage(ctx context.Context, request openai.ImageRequest) (*openai.ImageResponse, error) {
	var respBody openai.ImageResponse
	resp, err := c.prepareRequest(ctx).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint(request.Model, "/images/generations"))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "image request failed")
	}
	if resp.IsError() {
		return nil, c.errorFromBody(ctx, resp.StatusCode(), resp.Bytes(), "image request failed")
	}
	return &respBody, nil
}

// Download fetches an image the provider returned by URL.
func (c *ChatCompletionClient) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := c.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, "", platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "image download failed")
	}
	if resp.IsError() {
		return nil, "", c.errorFromBody(ctx, resp.StatusCode(), nil, "image download failed")
	}
	return resp.Bytes(), resp.Header().Get("Content-Type"), nil
}

func (c *ChatCompletionClient) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	for key, value := range c.settings.Headers {
		req.SetHeader(key, value)
	}
	return req
}

// endpoint builds the URL of an operation. Azure deployment mode addresses the model as a
// deployment and adds the api-version query.
func (c *ChatCompletionClient) endpoint(model, path string) string {
	if !c.settings.Deployment {
		return c.settings.BaseURL + path
	}
	endpoint := fmt.Sprintf("%s/deployments/%s%s", c.settings.BaseURL, url.PathEscape(model), path)
	if c.settings.APIVersion != "" {
		endpoint += "?api-version=" + url.QueryEscape(c.settings.APIVersion)
	}
	return endpoint
}

func (c *ChatCompletionClient) errorFromBody(ctx context.Context, status int, body []byte, message string) error {
	detail := decodeStreamError(string(body))
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	if detail == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, fmt.Sprintf("%s: status %d", message, status), nil, "16b8710e-d47c-4402-82d3-873fcdb34041")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, fmt.Sprintf("%s: %s", message, detail), nil, "9ea36fa6-6ecc-454d-82ca-c80267ea21e3")
}

// decodeStreamError extracts error.message from an OpenAI style error document.
func decodeStreamError(data string) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return strings.TrimSpace(envelope.Error.Message)
}

func accumulateToolCall(toolCall *openai.ToolCall, accumulator map[int]*toolCallAccumulator) {
	index := 0
	if toolCall.Index != nil {
		index = *toolCall.Index
	}
	acc := accumulator[index]
	if acc == nil {
		acc = &toolCallAccumulator{Index: index}
		accumulator[index] = acc
	}
	if toolCall.ID != "" {
		acc.ID = toolCall.ID
	}
	if toolCall.Type != "" {
		acc.Type = string(toolCall.Type)
	}
	if toolCall.Function.Name != "" {
		acc.Name = toolCall.Function.Name
	}
	acc.Arguments.WriteString(toolCall.Function.Arguments)
}

func buildToolCalls(accumulator map[int]*toolCallAccumulator) []openai.ToolCall {
	if len(accumulator) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(accumulator))
	for index := range accumulator {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	toolCalls := make([]openai.ToolCall, 0, len(indexes))
	for _, index := range indexes {
		acc := accumulator[index]
		if acc.Name == "" {
			continue
		}
		arguments := acc.Arguments.String()
		if strings.TrimSpace(arguments) == "" {
			arguments = "{}"
		}
		id := acc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", index)
		}
		toolCalls = append(toolCalls, openai.ToolCall{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: acc.Name, Arguments: arguments},
		})
	}
	return toolCalls
}
