package conversation

import "strings"

// ServiceMode says which reply backend the engine runs on.
type ServiceMode string

const (
	ModeAI   ServiceMode = "ai"
	ModeMock ServiceMode = "mock"
)

// ServiceDetector decides between the AI backend and mock mode from
// credential presence. The check is a pure read, cheap enough to run on
// every message, and never fails: absent credentials always resolve to mock.
type ServiceDetector struct {
	apiKey string
}

// NewServiceDetector builds a detector over the configured Gemini API key.
func NewServiceDetector(apiKey string) *ServiceDetector {
	return &ServiceDetector{apiKey: strings.TrimSpace(apiKey)}
}

// Detect reports the active service mode.
func (d *ServiceDetector) Detect() ServiceMode {
	if d == nil || d.apiKey == "" {
		return ModeMock
	}
	return ModeAI
}
