package service

import (
	"crypto/rand"
	"fmt"

	id "medcourier/pkg/domain"
)

// CodeGenerator issues tracking codes. Codes are opaque; uniqueness is
// enforced by the store and collisions are retried.
type CodeGenerator interface {
	Generate() (id.TrackingCode, error)
}

// trackingAlphabet is Crockford base32 without the ambiguous I, L, O and U.
const trackingAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const trackingCodeLength = 10

// RandomCodeGenerator produces codes like MC-7G2K9XQ4TB.
type RandomCodeGenerator struct{}

func (RandomCodeGenerator) Generate() (id.TrackingCode, error) {
	buf := make([]byte, trackingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tracking code: %w", err)
	}
	for i, b := range buf {
		buf[i] = trackingAlphabet[int(b)%len(trackingAlphabet)]
	}
	return id.TrackingCode("MC-" + string(buf)), nil
}
