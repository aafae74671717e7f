package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const VAPIHeader = "x-vapi-signature"

// VAPI verifies hex(HMAC-SHA256(secret, body)).
type VAPI struct {
	Secret string
}

func (v VAPI) Verify(r *http.Request, body []byte) error {
	if v.Secret == "" {
		return ErrNotConfigured
	}
	got := strings.TrimSpace(r.Header.Get(VAPIHeader))
	if got == "" {
		return ErrMissingSignature
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(sig, SignVAPI(v.Secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func SignVAPI(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
