package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DoneSentinel terminates a streamed response. It is not a chunk.
const DoneSentinel = "[DONE]"

// WriteJSON writes v to w as minified JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// MarshalChunk returns the minified JSON of a chunk.
func MarshalChunk(chunk *ChatCompletionChunk) ([]byte, error) {
	return json.Marshal(chunk)
}

// SSEWriter frames chunks as server-sent events on any writer. When the
// writer is an http.Flusher every event is flushed.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps w.
func NewSSEWriter(w io.Writer) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteChunk writes one `data:` event. It satisfies ChunkCallback.
func (s *SSEWriter) WriteChunk(chunk *ChatCompletionChunk) error {
	data, err := MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return s.writeEvent(data)
}

// WriteError writes an error envelope as an event, for failures after the
// stream has started.
func (s *SSEWriter) WriteError(resp ErrorResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.writeEvent(data)
}

// Done writes the [DONE] sentinel.
func (s *SSEWriter) Done() error {
	return s.writeEvent([]byte(DoneSentinel))
}

func (s *SSEWriter) writeEvent(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
