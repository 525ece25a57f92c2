package idgen

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("expected msg_ prefix, got %q", id)
	}
	if !IsMessageID(id) {
		t.Fatalf("IsMessageID(%q) = false", id)
	}
	if IsMessageID("conv_123") {
		t.Fatalf("unexpected match for foreign prefix")
	}
}

func TestNewMessageIDIsSortable(t *testing.T) {
	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		ids = append(ids, NewMessageID())
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not monotonic at %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}
