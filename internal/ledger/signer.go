package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	"deltagate/pkg/status"
)

// Signer holds the ephemeral segment signing key. The private key lives
// only in process memory and is never persisted; restarting the process
// rotates it, which is why every segment carries its public key.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh Ed25519 keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, status.Wrap(status.CodeInternal, "signing_key_generation_failed", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed builds a signer from a 32-byte seed, for deployments
// that inject key material through a secret mount.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, status.Invalid("signing_seed_size")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign signs the raw Merkle root bytes.
func (s *Signer) Sign(root [32]byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, root[:]))
}

// PublicKeyHex exposes the verification key for model cards and segment
// records.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// VerifySegment re-derives nothing; it checks the signature in seg against
// the given root using the public key embedded in the segment itself.
func VerifySegment(seg Segment, root [32]byte) error {
	pub, err := hex.DecodeString(seg.PublicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return status.Internal("segment_public_key_malformed")
	}
	sig, err := base64.StdEncoding.DecodeString(seg.Signature)
	if err != nil {
		return status.Internal("segment_signature_malformed")
	}
	if seg.Root != rootHex(root) {
		return status.Internal("segment_root_mismatch")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), root[:], sig) {
		return status.Internal("segment_signature_invalid")
	}
	return nil
}
