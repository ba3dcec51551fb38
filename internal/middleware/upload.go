package middleware

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dfryer1193/blogcms/api"
	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	uploadedFileKey = "uploadedFile"

	// multipartOverhead is body allowance for boundaries and text fields on top of the file limit
	multipartOverhead  = 1 << 20
	multipartMemory    = 8 << 20
	DefaultUploadField = "blogImage"
	DefaultMaxBytes    = 100 << 20
)

// UploadOptions configures the single-file upload gate
type UploadOptions struct {
	FieldName         string
	MaxBytes          int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
}

// Upload stores at most one file from a multipart request and exposes its
// metadata to later handlers through UploadedFile. Requests that are not
// multipart pass through untouched.
func Upload(store domain.FileStore, opts UploadOptions) gin.HandlerFunc {
	if opts.FieldName == "" {
		opts.FieldName = DefaultUploadField
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	gate := newTypeGate(opts.AllowedMIMETypes, opts.AllowedExtensions)

	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEMultipartPOSTForm {
			c.Next()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxBytes+multipartOverhead)
		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				rejectUpload(c, "File too large")
				return
			}
			rejectUpload(c, "Invalid multipart form")
			return
		}

		files := c.Request.MultipartForm.File[opts.FieldName]
		if len(files) == 0 {
			c.Next()
			return
		}
		if len(files) > 1 {
			rejectUpload(c, "Only one file may be uploaded")
			return
		}

		fh := files[0]
		if fh.Size > opts.MaxBytes {
			rejectUpload(c, "File too large")
			return
		}

		uploaded, err := saveUpload(c, store, gate, fh)
		if errors.Is(err, errDisallowedType) {
			rejectUpload(c, "Invalid file type")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to store upload")
			c.AbortWithStatusJSON(http.StatusInternalServerError, api.Response{
				Status:  http.StatusInternalServerError,
				Message: "Server error",
				Error:   err.Error(),
			})
			return
		}

		c.Set(uploadedFileKey, uploaded)
		c.Next()
	}
}

// UploadedFile returns the file stored for this request, or nil
func UploadedFile(c *gin.Context) *domain.UploadedFile {
	v, ok := c.Get(uploadedFileKey)
	if !ok {
		return nil
	}
	uploaded, _ := v.(*domain.UploadedFile)
	return uploaded
}

var errDisallowedType = errors.New("disallowed upload type")

func saveUpload(c *gin.Context, store domain.FileStore, gate *typeGate, fh *multipart.FileHeader) (*domain.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sniffed, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	declared := declaredType(fh)
	if !gate.allows(declared, sniffed, fh.Filename) {
		log.Warn().
			Str("filename", fh.Filename).
			Str("declared", declared).
			Str("sniffed", sniffed.String()).
			Msg("Rejected upload type")
		return nil, errDisallowedType
	}

	uploaded, err := store.Save(c.Request.Context(), f, fh.Filename)
	if err != nil {
		return nil, err
	}

	uploaded.ContentType = declared
	if uploaded.ContentType == "" {
		uploaded.ContentType = sniffed.String()
	}
	return uploaded, nil
}

func declaredType(fh *multipart.FileHeader) string {
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

func rejectUpload(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, api.Response{
		Status:  http.StatusBadRequest,
		Message: message,
	})
}

// typeGate accepts a file when any of its declared type, sniffed type or
// extension is allowed
type typeGate struct {
	mimeTypes  []string
	extensions map[string]struct{}
}

func newTypeGate(mimeTypes, extensions []string) *typeGate {
	g := &typeGate{extensions: make(map[string]struct{}, len(extensions))}
	for _, m := range mimeTypes {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			g.mimeTypes = append(g.mimeTypes, m)
		}
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		g.extensions[ext] = struct{}{}
	}
	return g
}

func (g *typeGate) allows(declared string, sniffed *mimetype.MIME, filename string) bool {
	declared = strings.ToLower(declared)
	for _, allowed := range g.mimeTypes {
		if declared == allowed {
			return true
		}
		if sniffed != nil && sniffed.Is(allowed) {
			return true
		}
	}

	_, ok := g.extensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}
