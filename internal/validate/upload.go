package validate

import (
	"fmt"
	"mime"
	"mime/multipart"
	"slices"
)

// DefaultMaxUploadBytes caps uploads at 10 MB.
const DefaultMaxUploadBytes = 10 << 20

// AllowedMIMETypes lists the document types accepted for ingestion.
var AllowedMIMETypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel",
}

// UploadOptions overrides the upload limits.
type UploadOptions struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Upload checks an uploaded file's declared type and size. A nil header
// means no file was sent.
func Upload(fh *multipart.FileHeader, o UploadOptions) Result {
	if fh == nil {
		return Result{Errors: []string{"No file uploaded"}}
	}

	maxBytes := o.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	allowed := o.AllowedTypes
	if len(allowed) == 0 {
		allowed = AllowedMIMETypes
	}

	var errs []string
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || !slices.Contains(allowed, mediaType) {
		errs = append(errs, "File type is not allowed")
	}
	switch {
	case fh.Size <= 0:
		errs = append(errs, "File is empty")
	case fh.Size > maxBytes:
		errs = append(errs, SizeMessage(maxBytes))
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// SizeMessage is the error reported for files over maxBytes.
func SizeMessage(maxBytes int64) string {
	return fmt.Sprintf("File size must be less than %dMB", maxBytes>>20)
}
