package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Signature"

// VerifySignature checks the OneBot HTTP POST signature: X-Signature must be
// "sha1=" followed by the hex HMAC-SHA1 of the raw body keyed by secret. An
// empty secret disables the check. The body is restored for the handler.
func VerifySignature(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortJSON(c, http.StatusRequestEntityTooLarge, "bad_request", "unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		got, ok := strings.CutPrefix(c.GetHeader(signatureHeader), "sha1=")
		sig, decErr := hex.DecodeString(got)
		if !ok || decErr != nil || !hmac.Equal(sig, Sign(key, body)) {
			LoggerFrom(c).Warn().Msg("rejected event with bad signature")
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid signature")
			return
		}
		c.Next()
	}
}

// Sign returns the raw HMAC-SHA1 of body under key.
func Sign(key, body []byte) []byte {
	m := hmac.New(sha1.New, key)
	m.Write(body)
	return m.Sum(nil)
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
