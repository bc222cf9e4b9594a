package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// SliceStream replays a fixed list of chunks.
type SliceStream struct {
	chunks []domain.Chunk
	pos    int
	err    error
}

// NewSliceStream returns a stream yielding chunks in order, then err (if any).
func NewSliceStream(chunks []domain.Chunk, err error) *SliceStream {
	return &SliceStream{chunks: chunks, pos: -1, err: err}
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.chunks) {
		s.pos = len(s.chunks)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() domain.Chunk {
	if s.pos < 0 || s.pos >= len(s.chunks) {
		return domain.Chunk{}
	}
	return s.chunks[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos >= len(s.chunks) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error { return nil }

// StreamOf streams from exec when it supports streaming; otherwise it executes the
// request and yields the whole response as one chunk.
func StreamOf(ctx context.Context, exec ports.ModelExecutor, req *domain.ModelRequest) (ports.ChunkStream, error) {
	if s, ok := exec.(ports.StreamingExecutor); ok {
		return s.Stream(ctx, req)
	}
	resp, err := exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewSliceStream([]domain.Chunk{ResponseChunk(resp)}, nil), nil
}

// ResponseChunk renders a complete response as a single chunk.
func ResponseChunk(resp *domain.ModelResponse) domain.Chunk {
	usage := resp.Usage
	chunk := domain.Chunk{
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        &usage,
	}
	for i, call := range resp.ToolCalls {
		args, _ := json.Marshal(call.Args)
		chunk.ToolCalls = append(chunk.ToolCalls, domain.ToolCallDelta{
			Index:     i,
			ID:        call.ID,
			Name:      call.Name,
			ArgsDelta: string(args),
		})
	}
	return chunk
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// Collect drains a stream into a complete response, calling onChunk for each chunk.
// Tool call fragments are assembled by index and their arguments decoded as JSON objects.
// The stream is always closed.
func Collect(stream ports.ChunkStream, onChunk func(domain.Chunk)) (*domain.ModelResponse, error) {
	defer stream.Close()

	var content strings.Builder
	resp := &domain.ModelResponse{}
	calls := make(map[int]*partialCall)

	for stream.Next() {
		chunk := stream.Current()
		if onChunk != nil {
			onChunk(chunk)
		}
		content.WriteString(chunk.Content)
		for _, d := range chunk.ToolCalls {
			pc, ok := calls[d.Index]
			if !ok {
				pc = &partialCall{}
				calls[d.Index] = pc
			}
			if d.ID != "" {
				pc.id = d.ID
			}
			if d.Name != "" {
				pc.name = d.Name
			}
			pc.args.WriteString(d.ArgsDelta)
		}
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	resp.Content = content.String()

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		pc := calls[i]
		args, err := DecodeArgs(pc.args.String())
		if err != nil {
			return nil, Permanent(fmt.Errorf("tool call %q: %w", pc.name, err))
		}
		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{ID: pc.id, Name: pc.name, Args: args})
	}
	return resp, nil
}

// DecodeArgs decodes the JSON object text a provider sends as tool arguments.
// Empty text decodes to an empty map.
func DecodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}
