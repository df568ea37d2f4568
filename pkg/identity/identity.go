package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const keyFilename = "identity.key"

var (
	// ErrNullSeed ...
	ErrNullSeed = errors.New("identity seed must not be null")
	// ErrInvalidIdentity is returned when an identity string is not a valid
	// hex-encoded public key.
	ErrInvalidIdentity = errors.New("identity is not a valid public key")
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("signature verification failed")
)

// Identity wraps the daemon's signing keypair. The public key, hex-encoded,
// is the identity string under which the daemon is known to its peers and to
// the DHT.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New generates a fresh random identity.
func New() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// FromSeed derives an identity from a 32-byte seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrNullSeed
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadOrCreate reads the identity key file from the given datadir, creating a
// new one if none exists yet.
func LoadOrCreate(datadir string) (*Identity, error) {
	path := filepath.Join(datadir, keyFilename)
	seed, err := os.ReadFile(path)
	if err == nil {
		return FromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading identity key: %w", err)
	}

	id, err := New()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, id.priv.Seed(), 0600); err != nil {
		return nil, fmt.Errorf("storing identity key: %w", err)
	}
	return id, nil
}

// ID returns the identity string, the hex-encoded public key.
func (i *Identity) ID() string {
	return hex.EncodeToString(i.pub)
}

// Sign signs the given payload with the identity key.
func (i *Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(i.priv, payload)
}

// Verify checks a signature made by the identity owning the given identity
// string over the given payload.
func Verify(id string, payload, sig []byte) error {
	pub, err := hex.DecodeString(id)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrInvalidIdentity
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return ErrInvalidSignature
	}
	return nil
}
