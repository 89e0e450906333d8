// Package signing signs and verifies swap receipts with Ed25519.
//
// The signed message is the RFC 8785 canonical JSON of the receipt with its
// signature field removed. Keys, public keys and signatures are hex
// encoded.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// Algorithm is the value recorded in Signature.Algorithm.
const Algorithm = "ed25519"

// ErrBadSignature is returned when a receipt signature does not verify.
var ErrBadSignature = errors.New("receipt signature does not verify")

// Signer holds one Ed25519 key.
//
// Thread-safety: immutable after construction, safe for concurrent use.
type Signer struct {
	keyID string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// NewSigner builds a signer from a 32-byte seed.
func NewSigner(keyID string, seed []byte) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("signing: key id is required")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{keyID: keyID, priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Generate creates a signer with a fresh random key.
func Generate(keyID string) (*Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("signing: generate seed: %w", err)
	}
	return NewSigner(keyID, seed)
}

// LoadSeedFile reads a hex seed written by WriteSeedFile.
func LoadSeedFile(keyID, path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signing: read seed: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("signing: decode seed %s: %w", path, err)
	}
	return NewSigner(keyID, seed)
}

// WriteSeedFile stores the signer's seed as hex with owner-only permissions.
func (s *Signer) WriteSeedFile(path string) error {
	data := hex.EncodeToString(s.priv.Seed()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("signing: write seed: %w", err)
	}
	return nil
}

// KeyID returns the key identifier recorded on signatures.
func (s *Signer) KeyID() string {
	return s.keyID
}

// PublicKey returns the hex public key.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// Sign attaches a signature to r, replacing any existing one.
func (s *Signer) Sign(r *ir.SwapReceipt) error {
	msg, err := Message(*r)
	if err != nil {
		return err
	}
	r.Signature = &ir.Signature{
		KeyID:     s.keyID,
		Algorithm: Algorithm,
		PublicKey: s.PublicKey(),
		Value:     hex.EncodeToString(ed25519.Sign(s.priv, msg)),
	}
	return nil
}

// Message returns the bytes a receipt signature covers.
func Message(r ir.SwapReceipt) ([]byte, error) {
	msg, err := ir.MarshalCanonical(r.Unsigned())
	if err != nil {
		return nil, fmt.Errorf("signing: canonicalize receipt %s: %w", r.ID, err)
	}
	return msg, nil
}

// Verify checks r's signature against the public key it carries. When
// trusted is non-empty the carried key must also equal trusted.
func Verify(r ir.SwapReceipt, trusted string) error {
	sig := r.Signature
	if sig == nil {
		return fmt.Errorf("%w: receipt %s is unsigned", ErrBadSignature, r.ID)
	}
	if sig.Algorithm != Algorithm {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrBadSignature, sig.Algorithm)
	}
	if trusted != "" && !strings.EqualFold(trusted, sig.PublicKey) {
		return fmt.Errorf("%w: key %s is not trusted", ErrBadSignature, sig.KeyID)
	}
	pub, err := hex.DecodeString(sig.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed public key", ErrBadSignature)
	}
	value, err := hex.DecodeString(sig.Value)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	msg, err := Message(r)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, value) {
		return fmt.Errorf("%w: receipt %s", ErrBadSignature, r.ID)
	}
	return nil
}
