package annotation

import (
	"path"
	"strings"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

var annotationExtensions = map[string]bool{
	".xml": true,
}

// FileStem returns the base name of key without its extension.
func FileStem(key string) string {
	base := path.Base(key)
	if base == "." || base == "/" {
		return ""
	}
	// A leading dot is part of the name, not an extension
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return base[:idx]
	}
	return base
}

// FileName returns the last path segment of key.
func FileName(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func extension(key string) string {
	return strings.ToLower(path.Ext(key))
}

func IsImageKey(key string) bool {
	return imageExtensions[extension(key)]
}

func IsAnnotationKey(key string) bool {
	return annotationExtensions[extension(key)]
}
