package custody

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	dErrors "medcourier/pkg/domain-errors"
)

// MinSignatureBytes is the smallest decoded signature image accepted. Anything
// smaller cannot hold a real pen stroke and is treated as corrupt.
const MinSignatureBytes = 256

// MaxSignerNameLength bounds the printed signer name.
const MaxSignerNameLength = 120

// Signature is the proof-of-custody artifact captured at pickup or delivery.
// Exactly one path is acceptable: Blob with SignerName, or UnavailableReason.
type Signature struct {
	Blob              []byte
	SignerName        string
	UnavailableReason string
}

// HasArtifact reports whether a signature image was supplied.
func (s Signature) HasArtifact() bool {
	return len(s.Blob) > 0
}

// ValidateSignature checks the signature capture rules. It never fixes input.
func ValidateSignature(sig Signature) error {
	signer := strings.TrimSpace(sig.SignerName)
	reason := strings.TrimSpace(sig.UnavailableReason)

	switch {
	case sig.HasArtifact() && reason != "":
		return dErrors.New(dErrors.CodeValidation, "provide either a signature or an unavailable reason, not both")
	case sig.HasArtifact():
		if signer == "" {
			return dErrors.New(dErrors.CodeValidation, "signer name is required with a signature")
		}
		if len(signer) > MaxSignerNameLength {
			return dErrors.New(dErrors.CodeValidation, "signer name is too long")
		}
		if len(sig.Blob) < MinSignatureBytes {
			return dErrors.New(dErrors.CodeValidation, "signature image is too small to be valid")
		}
		return nil
	case reason != "":
		return nil
	case signer != "":
		return dErrors.New(dErrors.CodeValidation, "signature is required when a signer name is given")
	default:
		return dErrors.New(dErrors.CodeValidation, "signature or signature unavailable reason is required")
	}
}

// SignatureDigest returns the hex BLAKE2b-256 digest of a signature image. The
// digest goes on the tracking event so the custody trail can be checked
// against the stored artifact.
func SignatureDigest(blob []byte) string {
	if len(blob) == 0 {
		return ""
	}
	sum := blake2b.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
