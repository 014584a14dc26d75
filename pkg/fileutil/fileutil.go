// Package fileutil holds the built-in upload validation rules and the
// storage-key naming scheme. Admin-managed FileTypePolicy rows override
// these defaults; see the files handler.
package fileutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MaxFileSize is the global per-file ceiling (100MB).
const MaxFileSize int64 = 100 * 1024 * 1024

var allowedTypes = map[string]string{
	"image/jpeg":    "image",
	"image/png":     "image",
	"image/gif":     "image",
	"image/webp":    "image",
	"image/svg+xml": "image",

	"application/pdf":    "document",
	"application/msword": "document",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "document",
	"application/vnd.ms-excel": "document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "document",
	"application/vnd.ms-powerpoint":                                     "document",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "document",
	"text/plain": "document",
	"text/csv":   "document",

	"video/mp4":       "video",
	"video/mpeg":      "video",
	"video/quicktime": "video",
	"video/webm":      "video",

	"audio/mpeg": "audio",
	"audio/wav":  "audio",
	"audio/ogg":  "audio",
	"audio/webm": "audio",

	"application/zip":              "archive",
	"application/x-rar-compressed": "archive",
	"application/x-7z-compressed":  "archive",
}

// IsAllowedType reports whether the MIME type is on the built-in allow-list.
func IsAllowedType(mimeType string) bool {
	_, ok := allowedTypes[mimeType]
	return ok
}

// IsValidSize reports whether the size fits the global ceiling.
func IsValidSize(size int64) bool {
	return size > 0 && size <= MaxFileSize
}

// Category maps a MIME type to its coarse category.
func Category(mimeType string) string {
	if category, ok := allowedTypes[mimeType]; ok {
		return category
	}
	return "other"
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	repeatedSep = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename strips path components and replaces anything outside
// [a-zA-Z0-9._-] so the result is safe as a disk filename.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = repeatedSep.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// UniqueFilename appends a timestamp and random suffix so two uploads of
// the same name never collide on disk.
func UniqueFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)

	return fmt.Sprintf("%s_%d_%s%s", base, time.Now().UnixMilli(), hex.EncodeToString(suffix), ext)
}
