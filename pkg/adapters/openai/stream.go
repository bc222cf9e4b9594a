package openai

import (
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// chunkStream converts SDK completion chunks into domain chunks.
type chunkStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current domain.Chunk
}

func (s *chunkStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	ck := s.stream.Current()
	chunk := domain.Chunk{}
	for _, ch := range ck.Choices {
		chunk.Content += ch.Delta.Content
		for _, tc := range ch.Delta.ToolCalls {
			chunk.ToolCalls = append(chunk.ToolCalls, domain.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				ArgsDelta: tc.Function.Arguments,
			})
		}
		if ch.FinishReason != "" {
			chunk.FinishReason = string(ch.FinishReason)
		}
	}
	if ck.Usage.TotalTokens > 0 {
		chunk.Usage = &domain.Usage{
			InputTokens:  int(ck.Usage.PromptTokens),
			OutputTokens: int(ck.Usage.CompletionTokens),
		}
	}
	s.current = chunk
	return true
}

func (s *chunkStream) Current() domain.Chunk { return s.current }

func (s *chunkStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *chunkStream) Close() error { return s.stream.Close() }
