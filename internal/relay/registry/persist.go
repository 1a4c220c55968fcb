package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CodeHiveAPP/codehive/internal/relay/room"
)

// DefaultPersistPath is where the relay writes its room snapshot.
const DefaultPersistPath = "./.codehive-rooms.json"

// PersistedRoom is one record of the on-disk snapshot. Passwords are
// never written in plaintext; only the SHA-256 hex goes to disk.
type PersistedRoom struct {
	Code           string  `json:"code"`
	CreatedAt      int64   `json:"createdAt"`
	CreatedBy      string  `json:"createdBy"`
	HasPassword    bool    `json:"hasPassword"`
	PasswordHash   *string `json:"passwordHash"`
	IsPublic       bool    `json:"isPublic"`
	ExpiresInHours int     `json:"expiresInHours"`
	LastActivity   int64   `json:"lastActivity"`
}

// Snapshot emits one record per non-empty room.
func (reg *Registry) Snapshot() []PersistedRoom {
	var records []PersistedRoom
	for _, r := range reg.All() {
		if r.IsEmpty() {
			continue
		}
		rec := PersistedRoom{
			Code:           r.Code(),
			CreatedAt:      r.CreatedAt(),
			CreatedBy:      r.CreatedBy(),
			HasPassword:    r.HasPassword(),
			IsPublic:       r.IsPublic(),
			ExpiresInHours: r.ExpiresInHours(),
			LastActivity:   r.LastActivity(),
		}
		if hash := r.PasswordHash(); hash != "" {
			rec.PasswordHash = &hash
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []PersistedRoom{}
	}
	return records
}

// Save writes the snapshot atomically: write to a temp file in the
// same directory, then rename over the target.
func Save(path string, records []PersistedRoom) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".codehive-rooms-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot file. A missing file yields an empty slice;
// loading is advisory, so callers treat a corrupt file as empty too.
func Load(path string) ([]PersistedRoom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []PersistedRoom
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return records, nil
}

// RestoreSnapshot recreates room metadata from persisted records.
// Membership is never restored; recovered rooms start cold.
func (reg *Registry) RestoreSnapshot(records []PersistedRoom) {
	for _, rec := range records {
		if reg.Has(rec.Code) {
			continue
		}
		hash := ""
		if rec.PasswordHash != nil {
			hash = *rec.PasswordHash
		}
		reg.Add(room.Restore(rec.Code, rec.CreatedAt, rec.CreatedBy, hash, rec.IsPublic, rec.ExpiresInHours, rec.LastActivity))
	}
}
