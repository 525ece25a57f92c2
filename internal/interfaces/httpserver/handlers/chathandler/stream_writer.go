package chathandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"bastion-server/internal/domain/chat"
	"bastion-server/internal/interfaces/httpserver/middlewares"
)

var errClientGone = errors.New("client disconnected")

// sseStreamWriter commits the SSE response on the first part so that errors raised before any
// output can still be answered with a JSON status.
type sseStreamWriter struct {
	mu        sync.Mutex
	c         *gin.Context
	flusher   http.Flusher
	committed bool
	closed    bool
}

var _ chat.StreamWriter = (*sseStreamWriter)(nil)

func newSSEStreamWriter(c *gin.Context) *sseStreamWriter {
	return &sseStreamWriter{c: c}
}

func (w *sseStreamWriter) Write(part chat.StreamPart) error {
	payload, err := json.Marshal(part)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClientGone
	}
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	if !w.committed {
		w.commit()
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", payload); err != nil {
		w.closed = true
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *sseStreamWriter) commit() {
	w.flusher = middlewares.CommitUIMessageStream(w.c)
	w.committed = true
}

// Committed reports whether any part reached the client.
func (w *sseStreamWriter) Committed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Close terminates a committed stream with the [DONE] sentinel.
func (w *sseStreamWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.committed || w.closed {
		return
	}
	w.closed = true
	if _, err := fmt.Fprint(w.c.Writer, "data: [DONE]\n\n"); err == nil && w.flusher != nil {
		w.flusher.Flush()
	}
}
