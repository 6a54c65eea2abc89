package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotStatus is the baseline snapshot state machine: pending -> active -> stale
type SnapshotStatus string

const (
	SnapshotPending SnapshotStatus = "pending"
	SnapshotActive  SnapshotStatus = "active"
	SnapshotStale   SnapshotStatus = "stale"
)

// BaselineSnapshot is the reference item set for a (retailer, category).
// Exactly one snapshot per key is active; superseded ones go stale and are kept.
type BaselineSnapshot struct {
	ID          string         `json:"id" db:"id"`
	Retailer    string         `json:"retailer" db:"retailer"`
	Category    string         `json:"category" db:"category"`
	Status      SnapshotStatus `json:"status" db:"status"`
	RunID       string         `json:"run_id" db:"run_id"`
	Items       CandidateList  `json:"items" db:"items"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty" db:"activated_at"`
}

// SnapshotRow is one entry of the append-only per-run catalog log
type SnapshotRow struct {
	RunID      string    `json:"run_id"`
	Retailer   string    `json:"retailer"`
	Category   string    `json:"category"`
	Candidate  Candidate `json:"candidate"`
	CapturedAt time.Time `json:"captured_at"`
}

// CandidateList is stored as a JSONB column
type CandidateList []Candidate

// Value implements driver.Valuer
func (l CandidateList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *CandidateList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("candidate list: unsupported type %T", src)
	}
	if err := json.Unmarshal(data, l); err != nil {
		return errors.Join(ErrMalformedResponse, err)
	}
	return nil
}
