// Package server provides the HTTP and WebSocket surface.
package server

// Server configuration constants
const (
	// MetadataTimeFormat is the timestamp format reported by /metadata.
	MetadataTimeFormat = "2006-01-02 15:04:05"

	// Thumbnail width bounds for /thumbnail?width=N.
	DefaultThumbnailWidth = 320
	MaxThumbnailWidth     = 2048
)
