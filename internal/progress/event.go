package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StagePageStart    Stage = "PAGE_START"
	StagePageSkipped  Stage = "PAGE_SKIPPED"
	StageBookArchived Stage = "BOOK_ARCHIVED"
	StageBookSkipped  Stage = "BOOK_SKIPPED"
	StageAssetSaved   Stage = "ASSET_SAVED"
	StageFetchRetry   Stage = "FETCH_RETRY"
)

// Event captures a single component of archiver progress.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form. The hub fills it.
	RunID [16]byte
	// TS is the UTC timestamp; the hub fills it when zero.
	TS    time.Time
	Stage Stage
	// Page is the catalog page number for page-scoped events.
	Page   int
	BookID string
	URL    string
	// Bytes carries the asset size for ASSET_SAVED.
	Bytes int64
	// Note carries low-volume context: a skip reason, a retry reason, an asset kind.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StagePageStart, StagePageSkipped:
		if e.Page <= 0 {
			return fmt.Errorf("%s requires a page number", e.Stage)
		}
	case StageBookArchived, StageBookSkipped, StageAssetSaved:
		if e.URL == "" {
			return fmt.Errorf("%s requires a url", e.Stage)
		}
	case StageFetchRetry:
		if e.URL == "" || e.Note == "" {
			return errors.New("fetch retry requires url and reason")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Bytes < 0 {
		return errors.New("bytes must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
