package middleware

import (
	"context"

	"github.com/ansibot/ansibot/internal/provider"
	"github.com/ansibot/ansibot/internal/redact"
)

// OutputSanitizer redacts credentials from model responses before they reach
// the channel delivery path. Planner output quotes tool results verbatim, so
// anything the controller leaked comes through here.
type OutputSanitizer struct {
	maxOutputLength int
}

// NewOutputSanitizer builds a sanitizer. maxOutputLength of 0 disables
// truncation.
func NewOutputSanitizer(maxOutputLength int) *OutputSanitizer {
	return &OutputSanitizer{maxOutputLength: maxOutputLength}
}

func (s *OutputSanitizer) Name() string { return "output-sanitizer" }

func (s *OutputSanitizer) ProcessRequest(_ context.Context, _ *provider.ChatRequest, _ *RequestMeta) error {
	return nil
}

func (s *OutputSanitizer) ProcessResponse(_ context.Context, _ *provider.ChatRequest, resp *provider.ChatResponse, meta *RequestMeta) error {
	redacted := redact.Redact(resp.Content)
	if redacted != resp.Content {
		resp.Content = redacted
		meta.Tags["output_sanitized"] = "redacted"
	}

	if s.maxOutputLength > 0 && len(resp.Content) > s.maxOutputLength {
		resp.Content = resp.Content[:s.maxOutputLength] + "\n[truncated by output sanitizer]"
		if _, ok := meta.Tags["output_sanitized"]; !ok {
			meta.Tags["output_sanitized"] = "truncated"
		}
	}

	return nil
}
