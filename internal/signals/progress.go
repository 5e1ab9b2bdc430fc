// Package signals implements the file-based channels between the control process
// and a worker: the progress snapshot the worker writes and the start signal the
// operator raises after a manual login.
package signals

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/models"
)

// ProgressFile is the worker-owned progress snapshot of one job
type ProgressFile struct {
	path string
}

func NewProgressFile(path string) *ProgressFile {
	return &ProgressFile{path: path}
}

func (p *ProgressFile) Path() string {
	return p.path
}

// Write replaces the snapshot atomically
func (p *ProgressFile) Write(snapshot models.ProgressSnapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	return common.WriteFileAtomic(p.path, data)
}

// Read returns the last snapshot. ok is false when the worker has not written one yet.
func (p *ProgressFile) Read() (snapshot models.ProgressSnapshot, ok bool, err error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot, false, nil
		}
		return snapshot, false, fmt.Errorf("failed to read progress: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, false, fmt.Errorf("failed to decode progress: %w", err)
	}
	return snapshot, true, nil
}
