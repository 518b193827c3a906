// ABOUTME: Bounds tool results to sizes an MCP client can carry
// ABOUTME: Truncates long text and swaps oversized structured payloads for summaries

package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	jmes "github.com/jmespath/go-jmespath"

	"github.com/2389/idgov-mcp/internal/metrics"
)

const (
	DefaultMaxTextChars       = 20000
	DefaultMaxStructuredChars = 4000

	// TruncationMarker is appended to truncated text.
	TruncationMarker = "\n…[truncated]"

	maxListedKeys = 50
)

// Result is a shaped tool result.
type Result struct {
	Text       string
	Structured any
	// Truncated is set when the text was cut.
	Truncated bool
	// StructuredOmitted is set when the structured payload was replaced by a summary.
	StructuredOmitted bool
}

// Shaper renders values as JSON text bounded by two limits.
type Shaper struct {
	maxText       int
	maxStructured int
	metrics       *metrics.Metrics
}

// Option configures a Shaper.
type Option func(*Shaper)

// WithMetrics records truncations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Shaper) { s.metrics = m }
}

// New creates a Shaper. Non-positive limits fall back to the defaults.
func New(maxText, maxStructured int, opts ...Option) *Shaper {
	if maxText <= 0 {
		maxText = DefaultMaxTextChars
	}
	if maxStructured <= 0 {
		maxStructured = DefaultMaxStructuredChars
	}
	s := &Shaper{maxText: maxText, maxStructured: maxStructured}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the text and structured maxima in characters.
func (s *Shaper) Limits() (maxText, maxStructured int) {
	return s.maxText, s.maxStructured
}

// Shape renders value as indented JSON and applies the size limits.
func (s *Shaper) Shape(value any) Result {
	text := render(value, "  ")
	textChars := utf8.RuneCountInString(text)

	if textChars > s.maxText {
		s.metrics.Truncation("text")
		kept := truncateRunes(text, s.maxText)
		return Result{
			Text: kept + TruncationMarker,
			Structured: map[string]any{
				"success":       successOf(value),
				"truncated":     true,
				"originalChars": textChars,
				"returnedChars": s.maxText,
				"message": fmt.Sprintf(
					"Response was %d characters and was truncated to %d. Narrow the request with filters, paging or a jmespath projection to see all of it.",
					textChars, s.maxText),
			},
			Truncated:         true,
			StructuredOmitted: true,
		}
	}

	if keys, ok := objectKeys(value); ok {
		if utf8.RuneCountInString(render(value, "")) > s.maxStructured {
			s.metrics.Truncation("structured")
			listed := keys
			if len(listed) > maxListedKeys {
				listed = listed[:maxListedKeys]
			}
			return Result{
				Text: text,
				Structured: map[string]any{
					"success":           successOf(value),
					"truncated":         false,
					"structuredOmitted": true,
					"keys":              listed,
					"keyCount":          len(keys),
					"message": fmt.Sprintf(
						"Structured content exceeds %d characters and was replaced by its top-level keys. The full JSON is in the text content.",
						s.maxStructured),
				},
				StructuredOmitted: true,
			}
		}
	}

	return Result{Text: text, Structured: value}
}

// Project applies a JMESPath expression to value. An empty expression returns value.
func Project(expr string, value any) (any, error) {
	if expr == "" {
		return value, nil
	}
	// go-jmespath only walks the generic JSON types.
	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}
	out, err := jmes.Search(expr, normalized)
	if err != nil {
		return nil, fmt.Errorf("jmespath %q: %w", expr, err)
	}
	return out, nil
}

func render(value any, indent string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(value); err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// objectKeys returns the sorted top-level keys when value is a JSON object.
func objectKeys(value any) ([]string, bool) {
	var keys []string
	switch v := value.(type) {
	case map[string]any:
		keys = make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
	case nil, string, bool, float64, []any:
		return nil, false
	default:
		data, err := json.Marshal(value)
		if err != nil || len(data) == 0 || data[0] != '{' {
			return nil, false
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		keys = make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, true
}

// successOf reports the value's own boolean "success" field, defaulting to true.
func successOf(value any) bool {
	if m, ok := value.(map[string]any); ok {
		if b, ok := m["success"].(bool); ok {
			return b
		}
	}
	return true
}

func normalize(value any) (any, error) {
	switch value.(type) {
	case nil, map[string]any, []any, string, bool, float64:
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding value for projection: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding value for projection: %w", err)
	}
	return out, nil
}
