package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentra/factcheck/internal/model"
)

// Provider is the reasoning capability consumed by the pipeline. All outputs
// are validated tagged structures; untyped model text never crosses inward.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// ExtractClaims decomposes normalized input text into atomic subclaims
	// plus seed search queries. Fails with ErrReasoningUnavailable.
	ExtractClaims(ctx context.Context, text string) (*ClaimPlan, error)

	// PlanQueries generates a small set of search queries for one claim,
	// covering the direct assertion, key entities, and counter-framing.
	PlanQueries(ctx context.Context, claimText string, max int) ([]string, error)

	// GenerateTurn produces one debate turn for the given role.
	GenerateTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)

	// IsAvailable checks that the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// ClaimPlan is the validated output of claim extraction.
type ClaimPlan struct {
	Subclaims []model.Subclaim `json:"subclaims"`
	Queries   []string         `json:"queries"`
}

// TurnRequest carries everything a role needs to produce its turn.
type TurnRequest struct {
	Role       model.Role
	ClaimText  string
	Subclaims  []model.Subclaim
	Evidence   []model.EvidenceItem
	PriorTurns []model.DebateTurn

	// Instruction is an extra constraint appended on retry, e.g. after a
	// citation contract violation.
	Instruction string
}

// TurnResult is the validated output of one debate turn. Citations must
// reference evidence IDs from the request's evidence set; the debate engine
// enforces that contract.
type TurnResult struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`

	// Judge-only fields.
	Label         string   `json:"label,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	Rationale     string   `json:"rationale,omitempty"`
	Supporting    []string `json:"supporting,omitempty"`
	Contradicting []string `json:"contradicting,omitempty"`
}

// validate rejects schema violations at the boundary so callers can retry
// instead of propagating untyped data inward.
func (r *TurnResult) validate(role model.Role) error {
	switch role {
	case model.RoleJudge:
		if r.Label == "" {
			return fmt.Errorf("judge turn missing label")
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("judge confidence %v out of range", r.Confidence)
		}
	default:
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("%s turn missing text", role)
		}
	}
	return nil
}

// buildPlannerPrompt asks for subclaims and seed queries as strict JSON.
func buildPlannerPrompt(text string) string {
	return fmt.Sprintf(`You are a multi-modal fact-checking planner.

INPUT CONTENT:
%s

TASK:
1) Extract core claim(s) as short, atomic subclaims.
2) Detect entities and time/place (when present).
3) Produce 3-5 diverse web search queries (for live search).

RESPONSE:
Return ONLY valid JSON (no extra text):
{
  "subclaims": [{"id":"C1","text":"...","time":"...","place":"..."}],
  "queries": ["...", "..."]
}`, text)
}

// buildQueryPrompt asks for per-claim queries: direct assertion, key
// entities, and counter-framing.
func buildQueryPrompt(claimText string, max int) string {
	return fmt.Sprintf(`Generate at most %d diverse web search queries to verify this claim:

CLAIM: %q

Cover: (a) the direct assertion, (b) its key entities and dates, (c) a
counter-framing query that would surface contradicting coverage.

RESPONSE:
Return ONLY valid JSON: {"queries": ["...", "..."]}`, max, claimText)
}

// buildTurnPrompt renders the role-specific debate prompt.
func buildTurnPrompt(req TurnRequest) string {
	var b strings.Builder

	switch req.Role {
	case model.RoleAnalyst:
		b.WriteString("ROLE: Analyst\nBuild the strongest supporting case for the claim using ONLY the evidence below.\n")
	case model.RoleSkeptic:
		b.WriteString("ROLE: Skeptic\nBuild the strongest refutation. You MUST surface at least one of: a contradiction, a missing-context flag, or an explicit concession that no counter-evidence exists.\n")
	case model.RoleJudge:
		b.WriteString("ROLE: Judge\nRead the full debate and the evidence, then issue a final verdict for the claim.\n")
	}

	fmt.Fprintf(&b, "\nCLAIM:\n%q\n", req.ClaimText)
	for _, sc := range req.Subclaims {
		fmt.Fprintf(&b, "- [%s] %s", sc.ID, sc.Text)
		if sc.Time != "" {
			fmt.Fprintf(&b, " (time: %s)", sc.Time)
		}
		if sc.Place != "" {
			fmt.Fprintf(&b, " (place: %s)", sc.Place)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nEVIDENCE (cite items by id; citing anything else is a contract violation):\n")
	if len(req.Evidence) == 0 {
		b.WriteString("(no evidence retrieved)\n")
	}
	for _, ev := range req.Evidence {
		fmt.Fprintf(&b, "* [%s] %s - %s (%s, trust=%.2f)\n", ev.ID, ev.Title, ev.Snippet, ev.URL, ev.TrustScore)
	}

	if len(req.PriorTurns) > 0 {
		b.WriteString("\nDEBATE SO FAR:\n")
		for _, turn := range req.PriorTurns {
			fmt.Fprintf(&b, "[%d] %s: %s\n", turn.Seq, turn.Role, turn.Text)
		}
	}

	if req.Instruction != "" {
		fmt.Fprintf(&b, "\nADDITIONAL INSTRUCTION:\n%s\n", req.Instruction)
	}

	b.WriteString("\nRESPONSE:\nReturn ONLY valid JSON:\n")
	if req.Role == model.RoleJudge {
		b.WriteString(`{
  "label": "TRUE|FAKE|UNVERIFIED",
  "confidence": 0.0,
  "rationale": "...",
  "supporting": ["evidence ids supporting the claim"],
  "contradicting": ["evidence ids contradicting the claim"]
}`)
	} else {
		b.WriteString(`{"text": "your argument", "citations": ["evidence ids used"]}`)
	}
	b.WriteString("\nIf a cross-examination round adds nothing new, set text to exactly \"no new argument\".\n")

	return b.String()
}

func systemPrompt(role model.Role) string {
	switch role {
	case model.RoleAnalyst:
		return "You are the Analyst in a structured fact-checking debate. Argue only from the provided evidence."
	case model.RoleSkeptic:
		return "You are the Skeptic in a structured fact-checking debate. Attack weaknesses, never invent sources."
	case model.RoleJudge:
		return "You are a rigorous fact-checking Judge. Decide only from the debate log and evidence snippets provided."
	}
	return "You are a careful fact-checking assistant."
}
