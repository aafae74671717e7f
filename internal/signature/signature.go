package signature

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/pkg/logger"
)

var (
	ErrMissingSignature = errors.New("signature: missing header")
	ErrInvalidSignature = errors.New("signature: mismatch")
	ErrNotConfigured    = errors.New("signature: secret not configured")
)

// MaxBodyBytes bounds what the gate buffers before verification.
const MaxBodyBytes = 1 << 20

const rawBodyKey = "signature.raw_body"

// Verifier checks a provider signature over the exact bytes received.
type Verifier interface {
	Verify(r *http.Request, body []byte) error
}

// Require buffers the request body, verifies it and restores it for the next
// handler. Verification failures abort with failStatus and have no side effects.
func Require(v Verifier, failStatus int) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unable to read body"})
			return
		}
		if len(body) > MaxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}

		if err := v.Verify(c.Request, body); err != nil {
			logger.FromGin(c).Warn("webhook signature rejected", "path", c.FullPath(), "err", err)
			c.AbortWithStatusJSON(failStatus, gin.H{"error": "Invalid signature"})
			return
		}

		c.Set(rawBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// RawBody returns the verified bytes stored by Require.
func RawBody(c *gin.Context) ([]byte, bool) {
	v, ok := c.Get(rawBodyKey)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
