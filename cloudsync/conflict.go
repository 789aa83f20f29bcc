package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillnotes/quill/cloudmap"
)

// CheckResult is the outcome of a pre-upload conflict check.
type CheckResult struct {
	HasConflict bool
	CloudID     string
	RemoteTime  time.Time
}

// ConflictChecker decides whether uploading a local entry would clobber a
// newer remote copy. Last-writer-wins with no merge: the contract is "don't
// silently overwrite something newer than what I last saw".
type ConflictChecker struct {
	api      API
	mappings cloudmap.Repository
	log      *slog.Logger
}

func NewConflictChecker(api API, mappings cloudmap.Repository, log *slog.Logger) *ConflictChecker {
	if log == nil {
		log = slog.Default()
	}
	return &ConflictChecker{api: api, mappings: mappings, log: log}
}

// Check compares the remote updated_at against localModified. No mapping
// means never published, so no conflict. A remote 404 means the mapping is
// stale; it is removed and the result reports no conflict and no cloud id.
// A conflict exists only when the remote time strictly exceeds the local
// one. Fetch failures are returned as errors; the caller skips the upload.
func (c *ConflictChecker) Check(ctx context.Context, localID string, localModified time.Time) (CheckResult, error) {
	mapping, ok := c.mappings.ByLocalID(localID)
	if !ok {
		return CheckResult{}, nil
	}

	remote, err := c.api.GetEntry(ctx, mapping.CloudID)
	if errors.Is(err, ErrNotFound) {
		c.log.Info("remote entry gone, dropping stale mapping",
			"local_id", localID, "cloud_id", mapping.CloudID)
		if rmErr := c.mappings.Remove(localID); rmErr != nil {
			return CheckResult{}, fmt.Errorf("removing stale mapping for %s: %w", localID, rmErr)
		}
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("conflict check for %s: %w", localID, err)
	}

	return CheckResult{
		HasConflict: remote.UpdatedAt.After(localModified),
		CloudID:     mapping.CloudID,
		RemoteTime:  remote.UpdatedAt,
	}, nil
}
