package domain

import "time"

// Pass distinguishes baseline establishment from ongoing monitoring
type Pass string

const (
	PassBaseline Pass = "baseline"
	PassMonitor  Pass = "monitor"
)

// Valid reports whether p is a known pass
func (p Pass) Valid() bool {
	return p == PassBaseline || p == PassMonitor
}

// RunStatus is the lifecycle of a run summary.
// A run stays running when aborted; only clean completion finalizes it.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunSummary is the bookkeeping record for one monitoring run
type RunSummary struct {
	ID                  string        `json:"run_id"`
	Retailer            string        `json:"retailer"`
	Category            string        `json:"category"`
	Pass                Pass          `json:"pass"`
	Status              RunStatus     `json:"status"`
	ItemsScanned        int           `json:"items_scanned"`
	NewFound            int           `json:"new_found"`
	SuspectedDuplicates int           `json:"suspected_duplicates"`
	ConfirmedExisting   int           `json:"confirmed_existing"`
	PriceChanges        int           `json:"price_changes"`
	FailedExtractions   int           `json:"failed_extractions"`
	CostIncurred        float64       `json:"cost_incurred"`
	Duration            time.Duration `json:"duration"`
	Error               string        `json:"error,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          *time.Time    `json:"finished_at,omitempty"`
}
