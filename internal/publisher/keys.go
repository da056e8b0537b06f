// Package publisher builds, signs, and announces new records.
package publisher

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSigner signs records with an ed25519 key loaded from disk. The
// key file holds the 32-byte seed hex-encoded on a single line.
type FileSigner struct {
	private ed25519.PrivateKey
	public  string
}

// LoadSigner reads a signing key from path.
func LoadSigner(path string) (*FileSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s: expected %d byte seed, got %d",
			path, ed25519.SeedSize, len(seed))
	}

	private := ed25519.NewKeyFromSeed(seed)
	return &FileSigner{
		private: private,
		public:  hex.EncodeToString(private.Public().(ed25519.PublicKey)),
	}, nil
}

// GenerateKey creates a new signing key at path. It refuses to
// overwrite an existing key file.
func GenerateKey(path string) (*FileSigner, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("key file %s already exists", path)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	private := ed25519.NewKeyFromSeed(seed)
	return &FileSigner{
		private: private,
		public:  hex.EncodeToString(private.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the hex-encoded public key used as the author ID.
func (s *FileSigner) PublicKey() string {
	return s.public
}

// Sign returns the hex-encoded signature over data.
func (s *FileSigner) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.private, data)), nil
}
