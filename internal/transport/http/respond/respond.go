// Package respond writes chat completion results and errors on echo
// responses.
package respond

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

// Error writes err as an ErrorResponse with the status it maps to.
func Error(c echo.Context, err error) error {
	status, body := protocol.ErrorFromErr(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	return c.JSON(status, body)
}

// BadBody reports an undecodable request body.
func BadBody(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, protocol.BuildErrorResponse(
		"invalid request body: "+err.Error(), protocol.ErrorTypeInvalidRequest, "", "invalid_json"))
}

// SSE runs produce with an emitter that frames chunks as server-sent
// events. Headers are only committed with the first chunk, so a failure
// before it becomes a regular JSON error. A failure after it is sent as an
// error event; the stream always ends with [DONE] unless the client is
// gone.
func SSE(c echo.Context, produce func(emit protocol.ChunkCallback) error) error {
	res := c.Response()
	sse := protocol.NewSSEWriter(res)
	started := false

	err := produce(func(chunk *protocol.ChatCompletionChunk) error {
		if !started {
			res.Header().Set(echo.HeaderContentType, "text/event-stream")
			res.Header().Set("Cache-Control", "no-cache")
			res.Header().Set("Connection", "keep-alive")
			res.WriteHeader(http.StatusOK)
			started = true
		}
		return sse.WriteChunk(chunk)
	})

	if err != nil && !started {
		return Error(c, err)
	}

	if c.Request().Context().Err() != nil {
		log.Printf("WARN: client went away during stream: %v", err)
		return nil
	}

	if err != nil {
		// Can't change status code after writing response
		log.Printf("ERROR: streaming request failed: %v", err)
		_, body := protocol.ErrorFromErr(err)
		if writeErr := sse.WriteError(body); writeErr != nil {
			return nil
		}
	}
	if err := sse.Done(); err != nil {
		log.Printf("WARN: failed to write [DONE]: %v", err)
	}
	return nil
}
