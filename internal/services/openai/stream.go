package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// ChatStream requests a streamed completion and calls onDelta with each
// content fragment as it arrives. The returned Completion holds the
// assembled reply and the usage reported in the final chunk.
//
// A stream that breaks after it started is not retried.
func (s *Service) ChatStream(ctx context.Context, messages []Message, opts ChatOptions, onDelta func(string)) (Completion, error) {
	op, err := s.chatOperation(domain.KindChatStream, messages, opts)
	if err != nil {
		return Completion{}, err
	}
	op.Stream = func(body io.Reader) (any, error) {
		return readChatStream(body, onDelta)
	}
	return rpc.Do[Completion](ctx, s.client, op)
}

// readChatStream reads server-sent events up to the [DONE] sentinel.
func readChatStream(body io.Reader, onDelta func(string)) (Completion, error) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		comp    Completion
		content strings.Builder
		finish  string
		done    bool
	)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			done = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return Completion{}, fmt.Errorf("%w: %v", rpc.ErrMalformedStream, err)
		}
		if chunk.ID != "" {
			comp.ID = chunk.ID
		}
		if chunk.Model != "" {
			comp.Model = chunk.Model
		}
		for _, c := range chunk.Choices {
			if c.Index != 0 {
				continue
			}
			if c.Delta.Content != "" {
				content.WriteString(c.Delta.Content)
				if onDelta != nil {
					onDelta(c.Delta.Content)
				}
			}
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
		}
		// Azure sends usage in a last chunk with no choices.
		if chunk.Usage != nil {
			comp.Usage = *chunk.Usage
		}
	}
	if err := sc.Err(); err != nil {
		return Completion{}, err
	}
	if !done {
		return Completion{}, fmt.Errorf("%w: stream ended before [DONE]", rpc.ErrMalformedStream)
	}

	comp.Choices = []Choice{{
		Message:      Message{Role: RoleAssistant, Content: content.String()},
		FinishReason: finish,
	}}
	return comp, nil
}
