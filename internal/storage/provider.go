// Package storage groups the artifact and metadata backends used by the
// archiver. Sub-packages implement crawler.BlobStore (local, gcs, memory)
// and record persistence (postgres).
package storage

// Backend names accepted by storage.backend.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)
