package cache

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const macLen = 32

// Signer authenticates cached payloads with a keyed BLAKE2b MAC so a
// corrupted or foreign cache entry is rejected instead of decoded.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

func (s *Signer) mac(payload []byte) []byte {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// Key longer than 64 bytes; fold it first.
		folded := blake2b.Sum256(s.key)
		h, _ = blake2b.New256(folded[:])
	}
	h.Write(payload)
	return h.Sum(nil)
}

// Seal appends the MAC to a payload.
func (s *Signer) Seal(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+macLen)
	out = append(out, payload...)
	return append(out, s.mac(payload)...)
}

// Open verifies and strips the MAC.
func (s *Signer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < macLen {
		return nil, fmt.Errorf("sealed payload too short (%d bytes)", len(sealed))
	}
	payload := sealed[:len(sealed)-macLen]
	tag := sealed[len(sealed)-macLen:]
	if subtle.ConstantTimeCompare(tag, s.mac(payload)) != 1 {
		return nil, fmt.Errorf("payload signature mismatch")
	}
	return payload, nil
}
