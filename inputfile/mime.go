package inputfile

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultMimeType = "application/octet-stream"
	// sniffLen is the number of bytes mimetype looks at by default.
	sniffLen = 3072
)

// Content detection can't tell text formats apart, the extension can.
var extensionMimeTypes = map[string]string{
	".txt":  "text/plain",
	".json": "application/json",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".svg":  "image/svg+xml",
}

func detect(head []byte, name string) string {
	return withExtensionFallback(mimetype.Detect(head).String(), name)
}

func detectFile(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return withExtensionFallback(defaultMimeType, path)
	}
	return withExtensionFallback(mtype.String(), path)
}

func withExtensionFallback(detected, name string) string {
	base := strings.SplitN(detected, ";", 2)[0]
	if base != defaultMimeType && base != "text/plain" {
		return detected
	}
	if byExt, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return byExt
	}
	return detected
}
