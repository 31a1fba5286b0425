package rag

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

const metadataVersion = 2

// Record is the source text stored at one index ordinal.
type Record struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	Chunk  int    `json:"chunk"`
}

// Metadata is the JSON companion of an index file.
type Metadata struct {
	Version    int       `json:"version"`
	Generation uuid.UUID `json:"generation"`
	Backend    string    `json:"backend"`
	Embedder   string    `json:"embedder"`
	Dimension  int       `json:"dimension"`
	Records    []Record  `json:"records"`
}

// loadMetadata reads and validates a metadata file.
func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("corrupt metadata: %w", err)
	}
	if md.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", md.Version)
	}
	return &md, nil
}

// save writes the metadata as JSON to path.
func (m *Metadata) save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
