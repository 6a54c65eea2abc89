package domain

import "time"

// ReviewKind is the type of human judgment a review item needs
type ReviewKind string

const (
	ReviewDuplicate        ReviewKind = "duplicate_adjudication"
	ReviewQualitative      ReviewKind = "qualitative_assessment"
	ReviewFailedExtraction ReviewKind = "failed_extraction"
)

// Valid reports whether k is a known kind
func (k ReviewKind) Valid() bool {
	return k == ReviewDuplicate || k == ReviewQualitative || k == ReviewFailedExtraction
}

// ReviewStatus tracks whether a decision has been posted
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// Decision is a reviewer verdict
type Decision string

const (
	DecisionNew               Decision = "new"
	DecisionConfirmedExisting Decision = "confirmed_existing"
	DecisionModest            Decision = "modest"
	DecisionRejected          Decision = "rejected"
	DecisionRetry             Decision = "retry"
	DecisionDismiss           Decision = "dismiss"
)

var decisionsByKind = map[ReviewKind][]Decision{
	ReviewDuplicate:        {DecisionNew, DecisionConfirmedExisting},
	ReviewQualitative:      {DecisionModest, DecisionRejected},
	ReviewFailedExtraction: {DecisionRetry, DecisionDismiss},
}

// Allows reports whether d is a valid decision for items of kind k
func (k ReviewKind) Allows(d Decision) bool {
	for _, allowed := range decisionsByKind[k] {
		if allowed == d {
			return true
		}
	}
	return false
}

// ReviewItem is an entry in the human review queue
type ReviewItem struct {
	ID          string       `json:"id"`
	Kind        ReviewKind   `json:"kind"`
	Retailer    string       `json:"retailer"`
	Category    string       `json:"category"`
	RunID       string       `json:"run_id,omitempty"`
	CanonicalID string       `json:"canonical_id,omitempty"`
	Mode        Mode         `json:"mode,omitempty"`
	Candidate   Candidate    `json:"candidate"`
	Match       *MatchResult `json:"match,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Status      ReviewStatus `json:"status"`
	Decision    Decision     `json:"decision,omitempty"`
	Reviewer    string       `json:"reviewer,omitempty"`
	Note        string       `json:"note,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}

// ReviewDecision is posted back by the review interface
type ReviewDecision struct {
	Decision Decision `json:"decision" binding:"required"`
	Reviewer string   `json:"-"`
	Note     string   `json:"note,omitempty"`
}
