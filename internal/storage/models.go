package storage

import "time"

// BackupMetadata is written as backup.json next to a committed snapshot.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Revision  string    `json:"revision,omitempty"`
	Files     []string  `json:"files"`
}

// MetadataFile is the name of the snapshot metadata file.
const MetadataFile = "backup.json"
