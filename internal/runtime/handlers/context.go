package handlers

import (
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// MessageContextBase provides the fields shared by all typed call contexts:
// the caller's metadata, the runtime logger, and the source window.
type MessageContextBase struct {
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger

	// Source is the window id the call originated from, zero when the main
	// process is the caller.
	Source int64
}

// CloneMetadata returns a copy of the current metadata map so handlers can
// safely mutate headers without touching the original map.
func (b MessageContextBase) CloneMetadata() metadatapkg.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a metadata value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata[key]
}

// CorrelationID returns the correlation id from metadata, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata[MetadataKeyCorrelationID]
}
