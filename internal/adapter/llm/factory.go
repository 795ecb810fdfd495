package llm

import (
	"log"
	"strings"
	"time"
)

const (
	// ModeMock selects the built-in mock engine.
	ModeMock = "mock"
	// ModeHTTP selects an OpenAI-compatible upstream engine.
	ModeHTTP = "http"
)

// NewEngine creates an engine for the given mode. Unknown modes fall back
// to the upstream client.
func NewEngine(mode, baseURL, apiKey string, timeout time.Duration) Engine {
	if strings.EqualFold(mode, ModeMock) {
		log.Println("ENGINE_MODE=mock detected, using mock engine")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
