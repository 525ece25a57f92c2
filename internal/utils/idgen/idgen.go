package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewMessageID returns a lexically sortable "msg_" ULID.
func NewMessageID() string {
	return newPrefixed("msg")
}

// NewObjectID returns a ULID with the given prefix, e.g. "pay_01h...".
func NewObjectID(prefix string) string {
	return newPrefixed(prefix)
}

// NewChatID returns a random UUID for chats created server side.
func NewChatID() string {
	return uuid.NewString()
}

func newPrefixed(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + strings.ToLower(id.String())
}

// IsMessageID reports whether value looks like an id produced by NewMessageID.
func IsMessageID(value string) bool {
	rest, ok := strings.CutPrefix(value, "msg_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(rest))
	return err == nil
}
