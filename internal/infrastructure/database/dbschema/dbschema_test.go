package dbschema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/domain/chat"
)

func TestJSONPartsScan(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  JSONParts
	}{
		{name: "nil", value: nil, want: nil},
		{name: "bytes", value: []byte(`[{"type":"text","text":"hi"}]`), want: JSONParts{{Type: "text", Text: "hi"}}},
		{name: "string", value: `[{"type":"step-start"}]`, want: JSONParts{{Type: "step-start"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parts JSONParts
			require.NoError(t, parts.Scan(tt.value))
			assert.Equal(t, tt.want, parts)
		})
	}

	var parts JSONParts
	assert.Error(t, parts.Scan(42))
}

func TestJSONPartsValueNeverNull(t *testing.T) {
	value, err := JSONParts(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value)
}

func TestMessageRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &chat.Message{
		ID:        "msg_1",
		Role:      chat.RoleAssistant,
		Parts:     []chat.Part{{Type: chat.PartTypeText, Text: "hello"}, {Type: "tool-readFile", ToolCallID: "c1", Input: json.RawMessage(`{"key":"a"}`)}},
		Metadata:  map[string]any{"modelId": "gpt-5-mini"},
		CreatedAt: created,
	}

	row := NewSchemaMessage("chat-1", msg)
	assert.Equal(t, "chat-1", row.ChatID)
	assert.Equal(t, "assistant", row.Role)

	back := row.EtoD()
	assert.Equal(t, msg.ID, back.ID)
	assert.Equal(t, msg.Parts, back.Parts)
	assert.Equal(t, "gpt-5-mini", back.Metadata["modelId"])
	assert.Equal(t, created, back.CreatedAt)
}

func TestMessageWithoutPartsOrMetadata(t *testing.T) {
	back := (&Message{ID: "msg_2", Role: "user"}).EtoD()
	assert.NotNil(t, back.Parts)
	assert.Empty(t, back.Parts)
	assert.Nil(t, back.Metadata)
}

func TestPaymentChannelMapping(t *testing.T) {
	row := NewSchemaPayment(&billing.Payment{Reference: "ref", Amount: 60000})
	assert.Nil(t, row.Channel)
	assert.Nil(t, row.Metadata)

	row = NewSchemaPayment(&billing.Payment{Reference: "ref", Channel: "card", Metadata: map[string]any{"plan": billing.PlanName}})
	require.NotNil(t, row.Channel)
	payment := row.EtoD()
	assert.Equal(t, "card", payment.Channel)
	assert.Equal(t, billing.PlanName, payment.Metadata["plan"])
}
