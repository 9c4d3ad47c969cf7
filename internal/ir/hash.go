package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// The version suffix allows algorithm migration.
const (
	DomainInstruction = "applier/instruction/v1"
	DomainTrace       = "applier/trace/v1"
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

// InstructionDigest identifies an instruction by its content: the input
// batch, the effect name and the lifecycle message. Two instructions with
// the same digest apply the same effect to the same elements.
func InstructionDigest(input IRArray, effect string, msg Message) (string, error) {
	obj := IRObject{
		"effect":  IRString(effect),
		"input":   input,
		"message": IRString(msg.String()),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InstructionDigest: %w", err)
	}
	return hashWithDomain(DomainInstruction, canonical), nil
}

// TraceDigest fingerprints a canonical trace snapshot so two runs can be
// compared without diffing the whole trace.
func TraceDigest(snapshot []byte) string {
	return hashWithDomain(DomainTrace, snapshot)
}
