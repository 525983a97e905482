package middleware

import (
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func signatureRouter(secret string, seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/onebot/event", VerifySignature(secret), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		*seen = string(b)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestVerifySignature(t *testing.T) {
	const (
		secret = "s3cret"
		body   = `{"post_type":"message","raw_message":"抽卡"}`
	)
	good := "sha1=" + hex.EncodeToString(Sign([]byte(secret), []byte(body)))

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"valid", secret, good, http.StatusNoContent},
		{"uppercase hex", secret, "sha1=" + strings.ToUpper(good[5:]), http.StatusNoContent},
		{"missing", secret, "", http.StatusUnauthorized},
		{"wrong prefix", secret, "sha256=" + good[5:], http.StatusUnauthorized},
		{"not hex", secret, "sha1=zz", http.StatusUnauthorized},
		{"other key", "other", good, http.StatusUnauthorized},
		{"disabled", "", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			r := signatureRouter(tc.secret, &seen)
			req := httptest.NewRequest(http.MethodPost, "/onebot/event", strings.NewReader(body))
			if tc.header != "" {
				req.Header.Set("X-Signature", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusNoContent && seen != body {
				t.Fatalf("handler saw body %q", seen)
			}
			if tc.want == http.StatusUnauthorized && seen != "" {
				t.Fatalf("handler ran on rejected request")
			}
		})
	}
}
