package jobs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside a job directory
const (
	inputBase  = "input"
	outputFile = "output.csv"
	statusFile = "status.json"
	signalFile = "start.signal"
)

// Artifacts lays out per-job files as <root>/<jobID>/{input.*,output.csv,status.json,start.signal}
type Artifacts struct {
	root string
}

func NewArtifacts(root string) Artifacts {
	return Artifacts{root: root}
}

func (a Artifacts) Dir(jobID string) string {
	return filepath.Join(a.root, jobID)
}

func (a Artifacts) InputPath(jobID, ext string) string {
	return filepath.Join(a.Dir(jobID), inputBase+ext)
}

func (a Artifacts) OutputPath(jobID string) string {
	return filepath.Join(a.Dir(jobID), outputFile)
}

func (a Artifacts) StatusPath(jobID string) string {
	return filepath.Join(a.Dir(jobID), statusFile)
}

func (a Artifacts) SignalPath(jobID string) string {
	return filepath.Join(a.Dir(jobID), signalFile)
}

// Create makes the job directory
func (a Artifacts) Create(jobID string) error {
	if err := os.MkdirAll(a.Dir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	return nil
}

// Remove deletes the job directory and everything in it
func (a Artifacts) Remove(jobID string) error {
	return os.RemoveAll(a.Dir(jobID))
}
