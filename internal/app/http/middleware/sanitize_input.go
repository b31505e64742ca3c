package middleware

import (
	"bytes"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

// Fields whose exact bytes matter and must never be rewritten.
var rawFields = map[string]bool{
	"password": true,
}

// plainText restores the characters bluemonday escapes in ordinary text.
// Angle brackets stay encoded.
var plainText = strings.NewReplacer("&#39;", "'", "&#34;", `"`, "&quot;", `"`, "&amp;", "&")

// SanitizeAndCleanInputMiddleware strips markup from every string in a JSON
// body, nested objects and arrays included. Entity-encoded markup is decoded
// before sanitizing so it is stripped like literal tags, and plain text such
// as "O'Keeffe" survives unchanged.
func SanitizeAndCleanInputMiddleware() gin.HandlerFunc {
	policy := bluemonday.StrictPolicy()

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}
		if ct := c.ContentType(); ct != "" && ct != gin.MIMEJSON {
			c.Next()
			return
		}

		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body", "code": "validation_error"})
			return
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			c.Request.Body = io.NopCloser(bytes.NewReader(buf))
			c.Next()
			return
		}

		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		var body any
		if err := dec.Decode(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Malformed JSON", "code": "validation_error"})
			return
		}

		newBody, err := json.Marshal(sanitize(policy, "", body))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Malformed JSON", "code": "validation_error"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(newBody))
		c.Request.ContentLength = int64(len(newBody))

		c.Next()
	}
}

func sanitize(p *bluemonday.Policy, key string, v any) any {
	switch t := v.(type) {
	case string:
		if rawFields[strings.ToLower(key)] {
			return t
		}
		return plainText.Replace(p.Sanitize(html.UnescapeString(t)))
	case map[string]any:
		for k, inner := range t {
			t[k] = sanitize(p, k, inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = sanitize(p, key, inner)
		}
		return t
	default:
		return v
	}
}
