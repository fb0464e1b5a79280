package reply

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"
)

const (
	maxSingleShotBytes = 1 << 20
	maxStreamLineBytes = 1 << 20
)

// replySource reads a Result out of a successful backend response body.
type replySource interface {
	read(body io.Reader) (*Result, error)
}

// sourceFor picks the reader from the response Content-Type.
func sourceFor(contentType string) replySource {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil && mt == "text/event-stream" {
		return streamedReply{}
	}
	if err != nil && strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		return streamedReply{}
	}
	return singleShotReply{}
}

// singleShotReply decodes one JSON object: {"reply"|"message", "concern_slug"}.
type singleShotReply struct{}

func (singleShotReply) read(body io.Reader) (*Result, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxSingleShotBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrNoReply)
	}

	var payload struct {
		Reply       string `json:"reply"`
		Message     string `json:"message"`
		ConcernSlug string `json:"concern_slug"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrNoReply, err)
	}

	text := payload.Reply
	if text == "" {
		text = payload.Message
	}
	if text == "" {
		text = DefaultReply
	}
	return &Result{Reply: text, ConcernSlug: payload.ConcernSlug, Source: SourceSingleShot}, nil
}

// streamedReply accumulates an OpenAI-style SSE token stream until [DONE] or EOF.
type streamedReply struct{}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (streamedReply) read(body io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)

	var sb strings.Builder
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Skip blank separators and comments.
		if line == "" || line[0] == ':' {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(line[len("data:"):])
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	// A stream cut off mid-answer is a transport failure, not a short reply.
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", ErrNoReply, err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("%w: empty stream", ErrNoReply)
	}
	return &Result{Reply: text, Source: SourceStreamed}, nil
}
