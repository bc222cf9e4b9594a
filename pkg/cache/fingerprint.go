package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
)

type fingerprintInput struct {
	Model    string            `json:"model"`
	Messages []domain.Message  `json:"messages"`
	Params   domain.Params     `json:"params"`
	Tools    []domain.ToolSpec `json:"tools,omitempty"`
}

// Fingerprint returns a stable hash of the request: model id, message history,
// sampling parameters and advertised tools. encoding/json sorts map keys, which makes
// the encoding canonical for the JSON-like values requests carry.
func Fingerprint(req *domain.ModelRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("nil request")
	}
	data, err := json.Marshal(fingerprintInput{
		Model:    req.Model,
		Messages: req.Messages,
		Params:   req.Params,
		Tools:    req.Tools,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
