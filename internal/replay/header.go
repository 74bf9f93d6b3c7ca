package replay

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version of header.json.
const HeaderSchemaVersion = 1

// Header is the session metadata written when a recording closes.
type Header struct {
	SchemaVersion      int    `json:"schema_version"`
	SessionID          string `json:"session_id"`
	FixedDtMs          uint32 `json:"fixed_dt_ms"`
	SnapshotIntervalMs uint32 `json:"snapshot_interval_ms"`
	FilePointer        string `json:"file_pointer"`
}

// Validate ensures the header can be used to interpret the recording.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return errors.New("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return errors.New("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the header as indented JSON.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
