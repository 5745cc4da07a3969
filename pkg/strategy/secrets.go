package strategy

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// CreateSecret derives missing secrets deterministically from a master
// seed with HKDF-SHA256 and stores them through the secret writer. The
// derivation is keyed per target name, so re-running the strategy within a
// cooldown window writes the same value (idempotent-safe). Secret values
// are never logged or reported; results carry key names only.
type CreateSecret struct {
	seed   []byte
	writer SecretWriter
}

// NewCreateSecret builds the strategy over a master seed.
func NewCreateSecret(seed []byte, writer SecretWriter) *CreateSecret {
	return &CreateSecret{seed: seed, writer: writer}
}

func (s *CreateSecret) Name() string { return "create_secret" }

func (s *CreateSecret) Execute(ctx context.Context, targets []string) (map[string]any, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("create secret: no target key names")
	}

	created := make([]string, 0, len(targets))
	for _, key := range targets {
		value, err := s.derive(key)
		if err != nil {
			return nil, err
		}
		if err := s.writer.WriteSecret(ctx, key, value); err != nil {
			return nil, fmt.Errorf("create secret %s: %w", key, err)
		}
		created = append(created, key)
	}

	return map[string]any{
		"status":       "created",
		"keys_created": created,
	}, nil
}

// derive produces a 32-byte url-safe secret bound to the key name.
func (s *CreateSecret) derive(key string) (string, error) {
	reader := hkdf.New(sha256.New, s.seed, nil, []byte("remedy/secret/"+key))
	material := make([]byte, 32)
	if _, err := io.ReadFull(reader, material); err != nil {
		return "", fmt.Errorf("derive secret %s: %w", key, err)
	}
	return base64.RawURLEncoding.EncodeToString(material), nil
}
