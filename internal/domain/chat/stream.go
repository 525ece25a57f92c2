package chat

import (
	"encoding/json"
	"strconv"
	"sync"
)

// Stream part types of the UI message stream protocol.
const (
	StreamPartStart               = "start"
	StreamPartStartStep           = "start-step"
	StreamPartFinishStep          = "finish-step"
	StreamPartTextStart           = "text-start"
	StreamPartTextDelta           = "text-delta"
	StreamPartTextEnd             = "text-end"
	StreamPartReasoningStart      = "reasoning-start"
	StreamPartReasoningDelta      = "reasoning-delta"
	StreamPartReasoningEnd        = "reasoning-end"
	StreamPartToolInputAvailable  = "tool-input-available"
	StreamPartToolOutputAvailable = "tool-output-available"
	StreamPartToolOutputError     = "tool-output-error"
	StreamPartFile                = "file"
	StreamPartFinish              = "finish"
	StreamPartError               = "error"

	RelatedQuestionsPartType = "data-relatedQuestions"
)

// StreamPart is one event written to the client.
type StreamPart struct {
	Type            string          `json:"type"`
	ID              string          `json:"id,omitempty"`
	Delta           string          `json:"delta,omitempty"`
	MessageID       string          `json:"messageId,omitempty"`
	MessageMetadata map[string]any  `json:"messageMetadata,omitempty"`
	ToolCallID      string          `json:"toolCallId,omitempty"`
	ToolName        string          `json:"toolName,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	MediaType       string          `json:"mediaType,omitempty"`
	URL             string          `json:"url,omitempty"`
	Data            any             `json:"data,omitempty"`
	FinishReason    string          `json:"finishReason,omitempty"`
	ErrorText       string          `json:"errorText,omitempty"`
}

// StreamWriter delivers parts to the caller. Implementations may defer committing the response
// until the first part is written.
type StreamWriter interface {
	Write(part StreamPart) error
}

// assistantStream writes parts to the client and accumulates the assistant message they form.
// Once a write fails every later write is dropped and the first error is returned.
type assistantStream struct {
	mu       sync.Mutex
	writer   StreamWriter
	message  Message
	writeErr error
	produced bool
	textIdx  map[string]int
	seq      int
}

func newAssistantStream(writer StreamWriter, messageID string) *assistantStream {
	return &assistantStream{
		writer:  writer,
		message: Message{ID: messageID, Role: RoleAssistant, Metadata: map[string]any{}},
		textIdx: map[string]int{},
	}
}

func (s *assistantStream) emit(part StreamPart) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if err := s.writer.Write(part); err != nil {
		s.writeErr = err
		return err
	}
	return nil
}

func (s *assistantStream) nextID(prefix string) string {
	s.seq++
	return prefix + "-" + strconv.Itoa(s.seq)
}

func (s *assistantStream) Start(metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range metadata {
		s.message.Metadata[k] = v
	}
	return s.emit(StreamPart{Type: StreamPartStart, MessageID: s.message.ID, MessageMetadata: metadata})
}

func (s *assistantStream) StartStep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message.Parts = append(s.message.Parts, Part{Type: PartTypeStepStart})
	return s.emit(StreamPart{Type: StreamPartStartStep})
}

func (s *assistantStream) FinishStep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(StreamPart{Type: StreamPartFinishStep})
}

// BeginText opens a text block and returns its id.
func (s *assistantStream) BeginText() (string, error) {
	return s.begin(PartTypeText, StreamPartTextStart, "text")
}

func (s *assistantStream) BeginReasoning() (string, error) {
	return s.begin(PartTypeReasoning, StreamPartReasoningStart, "reasoning")
}

func (s *assistantStream) begin(partType, streamType, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID(prefix)
	s.textIdx[id] = len(s.message.Parts)
	s.message.Parts = append(s.message.Parts, Part{Type: partType})
	return id, s.emit(StreamPart{Type: streamType, ID: id})
}

func (s *assistantStream) TextDelta(id, delta string) error {
	return s.delta(id, delta, StreamPartTextDelta)
}

func (s *assistantStream) ReasoningDelta(id, delta string) error {
	return s.delta(id, delta, StreamPartReasoningDelta)
}

func (s *assistantStream) delta(id, delta, streamType string) error {
	if delta == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.textIdx[id]; ok {
		s.message.Parts[idx].Text += delta
		s.produced = true
	}
	return s.emit(StreamPart{Type: streamType, ID: id, Delta: delta})
}

func (s *assistantStream) EndText(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(StreamPart{Type: StreamPartTextEnd, ID: id})
}

func (s *assistantStream) EndReasoning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(StreamPart{Type: StreamPartReasoningEnd, ID: id})
}

// Text writes a complete text block.
func (s *assistantStream) Text(text string) error {
	id, err := s.BeginText()
	if err != nil {
		return err
	}
	if err := s.TextDelta(id, text); err != nil {
		return err
	}
	return s.EndText(id)
}

func (s *assistantStream) ToolInput(call ToolCall, input json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message.Parts = append(s.message.Parts, Part{
		Type:       toolPartPrefix + call.Name,
		ToolCallID: call.ID,
		State:      ToolStateInputAvailable,
		Input:      input,
	})
	s.produced = true
	return s.emit(StreamPart{Type: StreamPartToolInputAvailable, ToolCallID: call.ID, ToolName: call.Name, Input: input})
}

func (s *assistantStream) ToolOutput(callID string, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if part := s.toolPart(callID); part != nil {
		part.State = ToolStateOutputAvailable
		part.Output = output
	}
	return s.emit(StreamPart{Type: StreamPartToolOutputAvailable, ToolCallID: callID, Output: output})
}

func (s *assistantStream) ToolError(callID, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if part := s.toolPart(callID); part != nil {
		part.State = ToolStateOutputError
		part.ErrorText = errorText
	}
	return s.emit(StreamPart{Type: StreamPartToolOutputError, ToolCallID: callID, ErrorText: errorText})
}

func (s *assistantStream) toolPart(callID string) *Part {
	for i := len(s.message.Parts) - 1; i >= 0; i-- {
		if s.message.Parts[i].IsTool() && s.message.Parts[i].ToolCallID == callID {
			return &s.message.Parts[i]
		}
	}
	return nil
}

// File writes a file part. persistedURL, when set, replaces the streamed URL in the stored message.
func (s *assistantStream) File(mediaType, filename, url, persistedURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := url
	if persistedURL != "" {
		stored = persistedURL
	}
	s.message.Parts = append(s.message.Parts, Part{Type: PartTypeFile, MediaType: mediaType, Filename: filename, URL: stored})
	s.produced = true
	return s.emit(StreamPart{Type: StreamPartFile, MediaType: mediaType, URL: url})
}

// Data writes a data part and stores it on the message.
func (s *assistantStream) Data(partType string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.message.Parts = append(s.message.Parts, Part{Type: partType, Data: encoded})
	return s.emit(StreamPart{Type: partType, Data: data})
}

func (s *assistantStream) Finish(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(StreamPart{Type: StreamPartFinish, FinishReason: reason})
}

func (s *assistantStream) Error(errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(StreamPart{Type: StreamPartError, ErrorText: errorText})
}

// Produced reports whether any assistant content was generated.
func (s *assistantStream) Produced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}

// Snapshot returns a copy of the accumulated message with empty blocks removed.
func (s *assistantStream) Snapshot() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.message
	msg.Parts = make([]Part, 0, len(s.message.Parts))
	for _, part := range s.message.Parts {
		if (part.Type == PartTypeText || part.Type == PartTypeReasoning) && part.Text == "" {
			continue
		}
		msg.Parts = append(msg.Parts, part)
	}
	msg.Metadata = make(map[string]any, len(s.message.Metadata))
	for k, v := range s.message.Metadata {
		msg.Metadata[k] = v
	}
	return msg
}
