package params

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future change of encoding without collisions.
const (
	DomainParams = "artdr/params/v1"
	DomainConfig = "artdr/config/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the identity of a parameter set. Two sets with the same
// keys and values hash identically regardless of insertion order.
func Hash(p Params) (string, error) {
	enc, err := Encode(p)
	if err != nil {
		return "", fmt.Errorf("params hash: %w", err)
	}
	return hashWithDomain(DomainParams, []byte(enc)), nil
}

// ConfigHash identifies an experiment definition: method, subset strategy,
// subset size and canonical params. Runtime and timestamps are excluded so
// reruns of the same definition share a hash.
func ConfigHash(method, strategy string, size int, p Params) (string, error) {
	enc, err := Encode(p)
	if err != nil {
		return "", fmt.Errorf("config hash: %w", err)
	}
	def := Params{
		"method":          String(method),
		"subset_strategy": String(strategy),
		"subset_size":     Int(size),
	}
	head, err := MarshalCanonical(def)
	if err != nil {
		return "", fmt.Errorf("config hash: %w", err)
	}
	return hashWithDomain(DomainConfig, append(append(head, 0x00), enc...)), nil
}
