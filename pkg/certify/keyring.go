package certify

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider supplies signing keys to the certifier. The default is an
// in-memory ed25519 keyring; production deployments can back this with an
// external KMS.
type KeyProvider interface {
	// Active returns the current signing key and its id.
	Active() (keyID string, key ed25519.PrivateKey, err error)
	// Public returns the public key for a key id.
	Public(keyID string) (ed25519.PublicKey, error)
}

// MemoryKeyring is an in-memory KeyProvider. Scoped keys are derived from
// one master seed with HKDF-SHA256 so each signing component gets an
// independent key without separate key management.
type MemoryKeyring struct {
	mu     sync.RWMutex
	seed   []byte
	active string
	keys   map[string]ed25519.PrivateKey
}

// NewMemoryKeyring generates a fresh random master seed.
func NewMemoryKeyring() (*MemoryKeyring, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("certify: generate seed: %w", err)
	}
	return NewMemoryKeyringFromSeed(seed)
}

// NewMemoryKeyringFromSeed builds a keyring over a caller-provided master
// seed and derives the default signing scope.
func NewMemoryKeyringFromSeed(seed []byte) (*MemoryKeyring, error) {
	k := &MemoryKeyring{
		seed: seed,
		keys: make(map[string]ed25519.PrivateKey),
	}
	keyID, err := k.Derive("certifier")
	if err != nil {
		return nil, err
	}
	k.active = keyID
	return k, nil
}

// Derive adds a key for the named scope and returns its id. Deriving the
// same scope twice yields the same key.
func (k *MemoryKeyring) Derive(scope string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	reader := hkdf.New(sha256.New, k.seed, nil, []byte("remedy/"+scope))
	material := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, material); err != nil {
		return "", fmt.Errorf("certify: derive key for %q: %w", scope, err)
	}

	key := ed25519.NewKeyFromSeed(material)
	pub := key.Public().(ed25519.PublicKey)
	keyID := hex.EncodeToString(pub[:8])
	k.keys[keyID] = key
	return keyID, nil
}

// Active implements KeyProvider.
func (k *MemoryKeyring) Active() (string, ed25519.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	key, ok := k.keys[k.active]
	if !ok {
		return "", nil, fmt.Errorf("certify: no active key")
	}
	return k.active, key, nil
}

// Public implements KeyProvider.
func (k *MemoryKeyring) Public(keyID string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("certify: unknown key %s", keyID)
	}
	return key.Public().(ed25519.PublicKey), nil
}
