package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainTrace prefixes trace digests.
// Version suffix enables future algorithm migration.
const DomainTrace = "parallel/trace/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TraceDigest computes the content digest of an ordered patch list.
//
// Two runs that applied the same mutations in the same ticks have equal
// digests whatever their sessions, so a journaled session can be checked
// against a deterministic run without comparing patch by patch.
func TraceDigest(patches []Patch) (string, error) {
	list := make([]any, len(patches))
	for i, p := range patches {
		list[i] = p.CanonicalMap()
	}

	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("trace digest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// MustTraceDigest is like TraceDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTraceDigest(patches []Patch) string {
	d, err := TraceDigest(patches)
	if err != nil {
		panic(err)
	}
	return d
}
