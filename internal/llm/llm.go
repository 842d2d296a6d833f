package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnavailable = errors.New("llm unavailable")

// Request is one prompt submission. The provider is an opaque capability:
// submit a prompt, receive text back, possibly streamed.
type Request struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
}

// Chunk is one streamed fragment of a response. A non-nil Err terminates
// the stream.
type Chunk struct {
	Text string
	Err  error
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// DecodeJSON locates the first JSON object in a model response and
// unmarshals it into out. Models routinely wrap JSON in prose or fences,
// so we scan rather than decode the raw response.
func DecodeJSON(response string, out any) error {
	jsonStr := FindFirstJSON(response)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

// FindFirstJSON locates the first outer-most JSON object {...} in the text.
func FindFirstJSON(input string) string {
	start := strings.Index(input, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(input); i++ {
		char := input[i]

		if inString {
			if escaped {
				escaped = false
			} else if char == '\\' {
				escaped = true
			} else if char == '"' {
				inString = false
			}
			continue
		}

		switch char {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := input[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}
