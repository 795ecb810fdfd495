// Package chatfile reads and writes conversations as JSON chat files.
//
// A chat file is a top-level array of {"role", "content"} objects in
// conversation order. Files are written pretty-printed with two-space
// indentation; any valid JSON layout is accepted on read. The lenient
// readers additionally accept the comments and trailing commas of
// hand-edited files.
package chatfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// MaxFileSize bounds how much of a chat file Load will read.
const MaxFileSize = 64 << 20

// record is the on-disk form of a message.
type record struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// Load reads the chat file at path.
func Load(path string) (*domain.Conversation, error) {
	return load(path, false)
}

// LoadLenient is Load for hand-edited files containing comments or
// trailing commas.
func LoadLenient(path string) (*domain.Conversation, error) {
	return load(path, true)
}

func load(path string, lenient bool) (*domain.Conversation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chat file: %w", err)
	}
	defer f.Close()

	conv, err := decode(f, lenient)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conv, nil
}

// Decode parses a chat file from r. Anything that is not valid JSON fails
// with ErrInvalidFormat. On error no conversation is returned.
func Decode(r io.Reader) (*domain.Conversation, error) {
	return decode(r, false)
}

// DecodeLenient is Decode that strips comments and trailing commas first.
func DecodeLenient(r io.Reader) (*domain.Conversation, error) {
	return decode(r, true)
}

func decode(r io.Reader, lenient bool) (*domain.Conversation, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading chat file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: chat file exceeds %d bytes", domain.ErrInvalidFormat, MaxFileSize)
	}

	if lenient {
		data = jsonc.ToJSON(data)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
	}
	if records == nil {
		// A bare `null` is not an array.
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrInvalidFormat)
	}

	conv := domain.NewConversation()
	for i, rec := range records {
		if rec.Role == nil || rec.Content == nil {
			return nil, fmt.Errorf("%w: message %d needs role and content", domain.ErrInvalidFormat, i)
		}
		role, err := domain.ParseRole(*rec.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msg, err := domain.NewMessage(role, *rec.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		conv.Append(msg)
	}
	return conv, nil
}

// Encode writes conv to w as an indented JSON array.
func Encode(w io.Writer, conv *domain.Conversation) error {
	type wire struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	out := make([]wire, 0, conv.Len())
	for _, msg := range conv.Messages() {
		out = append(out, wire{Role: domain.RoleString(msg.Role), Content: msg.Content})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding chat file: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Save atomically replaces the chat file at path with conv. Readers see
// either the old file or the new one, never a partial write, and a failed
// save leaves the old file in place. Concurrent writers to the same path
// are not coordinated: the last rename wins.
func Save(path string, conv *domain.Conversation) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp chat file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := Encode(tmpFile, conv); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing chat file: %w", err)
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("setting chat file mode: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp chat file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp chat file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming chat file to %s: %w", path, err)
	}
	success = true

	// Make the rename durable.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
