package hashing

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/argon2"

	"behavior-risk-service/internal/config"
)

// Argon2id parameters for identifier fingerprinting. Deliberately lighter
// than credential-grade settings; this runs on every session.
const (
	fingerprintIterations  = 1
	fingerprintMemoryKiB   = 8 * 1024
	fingerprintParallelism = 2
	fingerprintKeyLength   = 16
)

// Fingerprinter derives stable pseudonymous identifiers for network names
// and device fingerprints before they reach any store or index. The same
// input and pepper always produce the same output, so frequency tables keep
// working without the raw SSID or device ID ever being persisted.
type Fingerprinter struct {
	pepper []byte
	salt   []byte
}

func NewFingerprinter(cfg *config.Config) *Fingerprinter {
	pepper := []byte(cfg.Hashing.FingerprintPepper)

	// Argon2 requires a salt; derive one from the pepper so output stays
	// deterministic across restarts with the same configuration.
	saltSum := sha256.Sum256(append([]byte("fingerprint-salt:"), pepper...))

	return &Fingerprinter{
		pepper: pepper,
		salt:   saltSum[:],
	}
}

// Fingerprint returns a stable pseudonymous identifier for raw. Empty input
// maps to empty output so absent signals stay absent.
func (f *Fingerprinter) Fingerprint(raw string) string {
	if raw == "" {
		return ""
	}

	material := make([]byte, 0, len(raw)+len(f.pepper))
	material = append(material, []byte(raw)...)
	material = append(material, f.pepper...)

	sum := argon2.IDKey(
		material,
		f.salt,
		fingerprintIterations,
		fingerprintMemoryKiB,
		fingerprintParallelism,
		fingerprintKeyLength,
	)

	return base64.RawURLEncoding.EncodeToString(sum)
}
