package application

import (
	"path"
	"strings"

	"github.com/dfryer1193/blogcms/blog/domain"
)

// ImageResolver derives stored image references and turns them back into
// public URLs for responses
type ImageResolver struct {
	publicBaseURL string
	storagePrefix string
}

func NewImageResolver(publicBaseURL, storagePrefix string) *ImageResolver {
	return &ImageResolver{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		storagePrefix: strings.Trim(storagePrefix, "/"),
	}
}

// Resolve picks the image reference for a submission. An upload beats an
// external URL; ok is false when neither was supplied.
func (r *ImageResolver) Resolve(upload *domain.UploadedFile, externalURL string) (string, bool) {
	if upload != nil && upload.Filename != "" {
		return path.Join(r.storagePrefix, "uploads", upload.Filename), true
	}

	if strings.TrimSpace(externalURL) != "" {
		return externalURL, true
	}

	return "", false
}

// PublicURL rewrites a relative storage reference into an absolute URL.
// Absolute http(s) references pass through unchanged.
func (r *ImageResolver) PublicURL(ref string) string {
	if ref == "" || isAbsoluteHTTP(ref) {
		return ref
	}

	return r.publicBaseURL + "/" + strings.TrimLeft(ref, "/")
}

func isAbsoluteHTTP(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
