package certify

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
)

// defaultSchema is the structural contract every certifiable result must
// meet: a status string plus free-form detail.
const defaultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "status": {"type": "string", "minLength": 1}
  },
  "required": ["status"]
}`

// defaultRules are the CEL acceptance rules evaluated in order against
// {"result": payload}. Every rule must hold for certification.
var defaultRules = []string{
	`result.status != "error"`,
	`!("fixes_failed" in result) || int(result.fixes_failed) == 0`,
	`!("rollback_available" in result) || result.rollback_available == true`,
}

// Certificate is an offline-verifiable attestation: the payload's
// canonical hash signed with ed25519.
type Certificate struct {
	ID          string    `json:"id"`
	PayloadHash string    `json:"payload_hash"`
	KeyID       string    `json:"key_id"`
	SignedAt    time.Time `json:"signed_at"`
	Signature   string    `json:"signature"`
}

// LocalCertifier validates and attests results without external services.
type LocalCertifier struct {
	schema *jsonschema.Schema
	env    *cel.Env
	rules  []cel.Program
	exprs  []string
	keys   KeyProvider

	mu     sync.RWMutex
	issued map[string]Certificate
}

// NewLocalCertifier compiles the default schema and rules.
func NewLocalCertifier(keys KeyProvider) (*LocalCertifier, error) {
	return NewLocalCertifierWithRules(keys, defaultSchema, defaultRules)
}

// NewLocalCertifierWithRules compiles a caller-provided schema and CEL
// rule set.
func NewLocalCertifierWithRules(keys KeyProvider, schemaJSON string, rules []string) (*LocalCertifier, error) {
	schema, err := jsonschema.CompileString("result.schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("certify: compile schema: %w", err)
	}

	env, err := cel.NewEnv(cel.Variable("result", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("certify: cel environment: %w", err)
	}

	programs := make([]cel.Program, 0, len(rules))
	for _, expr := range rules {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("certify: compile rule %q: %w", expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("certify: program rule %q: %w", expr, err)
		}
		programs = append(programs, prg)
	}

	return &LocalCertifier{
		schema: schema,
		env:    env,
		rules:  programs,
		exprs:  rules,
		keys:   keys,
		issued: make(map[string]Certificate),
	}, nil
}

// Certify implements Certifier: schema validation, then the acceptance
// rules in declared order, then certificate issuance.
func (c *LocalCertifier) Certify(_ context.Context, result map[string]any) (Result, error) {
	payload, err := roundTripJSON(result)
	if err != nil {
		return Result{}, err
	}

	if err := c.schema.Validate(payload); err != nil {
		return Result{Certified: false, Reason: fmt.Sprintf("schema violation: %v", err)}, nil
	}

	for i, prg := range c.rules {
		out, _, err := prg.Eval(map[string]any{"result": payload})
		if err != nil {
			return Result{Certified: false, Reason: fmt.Sprintf("rule %d evaluation failed: %v", i, err)}, nil
		}
		pass, ok := out.Value().(bool)
		if !ok || !pass {
			return Result{Certified: false, Reason: fmt.Sprintf("rule rejected result: %s", c.exprs[i])}, nil
		}
	}

	cert, err := c.issue(payload)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Certified:     true,
		Reason:        "accepted",
		CertificateID: cert.ID,
		Details:       map[string]any{"payload_hash": cert.PayloadHash, "key_id": cert.KeyID},
	}, nil
}

// issue signs the canonical payload hash and records the certificate.
func (c *LocalCertifier) issue(payload any) (Certificate, error) {
	hash, err := canon.Hash(payload)
	if err != nil {
		return Certificate{}, err
	}

	keyID, key, err := c.keys.Active()
	if err != nil {
		return Certificate{}, err
	}

	cert := Certificate{
		ID:          uuid.NewString(),
		PayloadHash: hash,
		KeyID:       keyID,
		SignedAt:    time.Now().UTC(),
		Signature:   base64.StdEncoding.EncodeToString(ed25519.Sign(key, []byte(hash))),
	}

	c.mu.Lock()
	c.issued[cert.ID] = cert
	c.mu.Unlock()
	return cert, nil
}

// Certificate returns an issued certificate by id.
func (c *LocalCertifier) Certificate(id string) (Certificate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cert, ok := c.issued[id]
	return cert, ok
}

// VerifyCertificate checks a certificate against a payload: the canonical
// hash must match and the signature must verify with the certificate's
// key.
func (c *LocalCertifier) VerifyCertificate(cert Certificate, payload any) error {
	hash, err := canon.Hash(payload)
	if err != nil {
		return err
	}
	if hash != cert.PayloadHash {
		return fmt.Errorf("certify: payload hash mismatch")
	}

	pub, err := c.keys.Public(cert.KeyID)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(cert.Signature)
	if err != nil {
		return fmt.Errorf("certify: decode signature: %w", err)
	}
	if !ed25519.Verify(pub, []byte(cert.PayloadHash), sig) {
		return fmt.Errorf("certify: signature verification failed")
	}
	return nil
}

// roundTripJSON normalizes a payload into plain JSON types so schema
// validation and CEL see the same shapes the wire would carry.
func roundTripJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("certify: encode payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("certify: decode payload: %w", err)
	}
	return out, nil
}
