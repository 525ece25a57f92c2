package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	UIMessageStreamHeader  = "x-vercel-ai-ui-message-stream"
	UIMessageStreamVersion = "v1"
)

// CommitUIMessageStream writes the 200 status and SSE headers of a UI message stream. Nothing may
// be written to c before it. The flusher is nil when the writer cannot flush.
func CommitUIMessageStream(c *gin.Context) http.Flusher {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set(UIMessageStreamHeader, UIMessageStreamVersion)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	flusher, _ := c.Writer.(http.Flusher)
	return flusher
}
