package domain

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	ContentTypeText = "text/plain"
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var supportedContentTypes = map[string]struct{}{
	ContentTypeText: {},
	ContentTypePDF:  {},
	ContentTypeJPEG: {},
	ContentTypePNG:  {},
	ContentTypeXLSX: {},
}

var extensionContentTypes = map[string]string{
	".txt":  ContentTypeText,
	".pdf":  ContentTypePDF,
	".jpg":  ContentTypeJPEG,
	".jpeg": ContentTypeJPEG,
	".png":  ContentTypePNG,
	".xlsx": ContentTypeXLSX,
}

// ResolveContentType strips parameters from the declared media type and falls
// back to the file extension when the client sent a generic type.
func ResolveContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = parsed
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt, ok := extensionContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return byExt
		}
	}
	return contentType
}

func IsSupportedContentType(contentType string) bool {
	_, ok := supportedContentTypes[contentType]
	return ok
}
