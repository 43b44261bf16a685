package model

import (
	"strings"
	"time"
)

// Claim is an atomic, checkable factual assertion extracted from the input.
// Claims are created by the extractor and consumed read-only downstream; the
// debate engine freezes its turn log and verdict into the claim when it closes.
type Claim struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Text      string         `json:"text"`
	Subclaims []Subclaim     `json:"subclaims,omitempty"` // Finer-grained decomposition, when the planner produces one
	Status    ClaimStatus    `json:"status"`
	Evidence  []EvidenceItem `json:"evidence,omitempty"` // Promoted working set used in the debate
	Turns     []DebateTurn   `json:"turns,omitempty"`    // Frozen debate log
	Verdict   *Verdict       `json:"verdict,omitempty"`
	Notes     []string       `json:"notes,omitempty"` // Human-readable degradation notes
}

// Subclaim is one component assertion of a claim, optionally anchored in time/place.
type Subclaim struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Time  string `json:"time,omitempty"`
	Place string `json:"place,omitempty"`
}

// ClaimStatus mirrors job status at claim granularity.
type ClaimStatus string

const (
	ClaimPending    ClaimStatus = "pending"
	ClaimRetrieving ClaimStatus = "retrieving"
	ClaimDebating   ClaimStatus = "debating"
	ClaimDone       ClaimStatus = "done"
	ClaimFailed     ClaimStatus = "failed"
)

// Role identifies the speaker of a debate turn.
type Role string

const (
	RoleAnalyst Role = "analyst"
	RoleSkeptic Role = "skeptic"
	RoleJudge   Role = "judge"
)

// DebateTurn is one entry in a claim's append-only debate log.
type DebateTurn struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	ClaimID   string    `json:"claim_id"`
	Citations []string  `json:"citations,omitempty"` // EvidenceItem IDs referenced by this turn
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Label is the verdict classification for a claim or job.
type Label string

const (
	LabelTrue       Label = "TRUE"
	LabelFake       Label = "FAKE"
	LabelUnverified Label = "UNVERIFIED"
)

// Verdict is the calibrated outcome of one claim's debate, or the aggregate
// outcome of a job. Immutable once produced.
type Verdict struct {
	Label         Label    `json:"label"`
	Confidence    float64  `json:"confidence"` // 0..1, ceiling bounded by evidence coverage
	Supporting    []string `json:"supporting,omitempty"`
	Contradicting []string `json:"contradicting,omitempty"`
	Rationale     string   `json:"rationale,omitempty"`
}

// ParseLabel normalizes a model-produced label string, defaulting to Unverified.
// Matching ignores case and surrounding whitespace since model output varies.
func ParseLabel(s string) Label {
	switch label := Label(strings.ToUpper(strings.TrimSpace(s))); label {
	case LabelTrue, LabelFake, LabelUnverified:
		return label
	}
	return LabelUnverified
}
