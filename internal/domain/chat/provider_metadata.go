package chat

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// ProviderTokenMetadata is the canonical per-turn token metadata across providers.
type ProviderTokenMetadata struct {
	ResponseID         *string `json:"responseId,omitempty"`
	CachedPromptTokens *int64  `json:"cachedPromptTokens,omitempty"`
	ReasoningTokens    *int64  `json:"reasoningTokens,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m *ProviderTokenMetadata) IsEmpty() bool {
	return m == nil || (m.ResponseID == nil && m.CachedPromptTokens == nil && m.ReasoningTokens == nil)
}

// ExtractProviderMetadata picks the provider entry to read (openai, then azure, then
// preferredKey, then the first key in sorted order) and normalises its fields. The metadata is
// nil when the chosen entry carries no recognised field.
func ExtractProviderMetadata(raw ProviderMetadata, preferredKey string) (string, *ProviderTokenMetadata) {
	key, entry := selectProviderEntry(raw, preferredKey)
	if entry == nil {
		return key, nil
	}

	md := &ProviderTokenMetadata{
		ResponseID:         firstString(entry, "responseId", "response_id", "id"),
		CachedPromptTokens: firstInt(entry, "cachedPromptTokens", "cached_prompt_tokens"),
		ReasoningTokens:    firstInt(entry, "reasoningTokens", "reasoning_tokens"),
	}
	if md.IsEmpty() {
		return key, nil
	}
	return key, md
}

func selectProviderEntry(raw ProviderMetadata, preferredKey string) (string, map[string]any) {
	if len(raw) == 0 {
		return preferredKey, nil
	}
	for _, key := range []string{"openai", "azure", preferredKey} {
		if key == "" {
			continue
		}
		if entry, ok := raw[key]; ok && entry != nil {
			return key, entry
		}
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if raw[key] != nil {
			return key, raw[key]
		}
	}
	return preferredKey, nil
}

// MergeProviderMetadata takes each field from next when set, falling back to prev.
func MergeProviderMetadata(prev, next *ProviderTokenMetadata) *ProviderTokenMetadata {
	if prev == nil && next == nil {
		return nil
	}
	merged := &ProviderTokenMetadata{}
	if prev != nil {
		*merged = *prev
	}
	if next != nil {
		if next.ResponseID != nil {
			merged.ResponseID = next.ResponseID
		}
		if next.CachedPromptTokens != nil {
			merged.CachedPromptTokens = next.CachedPromptTokens
		}
		if next.ReasoningTokens != nil {
			merged.ReasoningTokens = next.ReasoningTokens
		}
	}
	if merged.IsEmpty() {
		return nil
	}
	return merged
}

// toMap renders the metadata the way it is stored under metadata.provider[key].
func (m *ProviderTokenMetadata) toMap() map[string]any {
	out := map[string]any{}
	if m == nil {
		return out
	}
	if m.ResponseID != nil {
		out["responseId"] = *m.ResponseID
	}
	if m.CachedPromptTokens != nil {
		out["cachedPromptTokens"] = *m.CachedPromptTokens
	}
	if m.ReasoningTokens != nil {
		out["reasoningTokens"] = *m.ReasoningTokens
	}
	return out
}

func firstString(entry map[string]any, keys ...string) *string {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case string:
			if v != "" {
				s := v
				return &s
			}
		case json.Number:
			s := v.String()
			return &s
		}
	}
	return nil
}

func firstInt(entry map[string]any, keys ...string) *int64 {
	for _, key := range keys {
		if n, ok := toInt64(entry[key]); ok {
			return &n
		}
	}
	return nil
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case *int64:
		if v != nil {
			return *v, true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
