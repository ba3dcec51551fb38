package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultBodyBytes caps JSON and urlencoded request bodies
const DefaultBodyBytes = 1 << 20

// BodyLimit caps request bodies other than multipart forms, which Upload
// limits against the file size instead. Reads past maxBytes fail with
// *http.MaxBytesError.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyBytes
	}

	return func(c *gin.Context) {
		if c.Request.Body != nil && c.ContentType() != gin.MIMEMultipartPOSTForm {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
