// Package debate runs the Analyst/Skeptic/Judge state machine that converts
// a claim's ranked evidence into a calibrated verdict.
package debate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/evidence"
	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
)

// State is one phase of a claim's debate. Transitions are strictly
// sequential; no state is revisited once passed.
type State string

const (
	StateOpening          State = "opening"
	StateAnalystArgues    State = "analyst_argues"
	StateSkepticRebuts    State = "skeptic_rebuts"
	StateCrossExamination State = "cross_examination"
	StateJudgeRules       State = "judge_rules"
	StateClosed           State = "closed"
)

// noNewArgument is the marker roles emit when a cross-examination round
// adds nothing; it ends the phase early.
const noNewArgument = "no new argument"

// Outcome is the frozen result of one claim's debate.
type Outcome struct {
	Turns   []model.DebateTurn
	Verdict model.Verdict
	States  []State  // visited states in order, ending with Closed
	Notes   []string // degradation notes surfaced into the claim rationale
}

// Engine runs debates. One Engine serves many claims; each Run is
// independent and internally sequential.
type Engine struct {
	provider  llm.Provider
	cfg       model.DebateConfig
	highTrust float64
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a debate engine.
func NewEngine(provider llm.Provider, cfg model.DebateConfig, highTrust float64, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCrossRounds < 0 {
		cfg.MaxCrossRounds = 0
	}
	if highTrust <= 0 {
		highTrust = 0.85
	}
	return &Engine{
		provider:  provider,
		cfg:       cfg,
		highTrust: highTrust,
		logger:    logger,
		now:       time.Now,
	}
}

// run-scoped debate state.
type run struct {
	claim    model.Claim
	evidence []model.EvidenceItem
	known    map[string]model.EvidenceItem
	turns    []model.DebateTurn
	states   []State
	notes    []string
	seq      int
}

// Run executes the full state machine for one claim. Cancellation is
// honored at state boundaries; an error means reasoning was unavailable
// even after the per-state retry, and the partial outcome is still
// returned so its notes survive into the claim.
func (e *Engine) Run(ctx context.Context, claim model.Claim, items []model.EvidenceItem) (*Outcome, error) {
	d := &run{
		claim:    claim,
		evidence: items,
		known:    make(map[string]model.EvidenceItem, len(items)),
	}
	for _, item := range items {
		d.known[item.ID] = item
	}

	d.states = append(d.states, StateOpening)

	// AnalystArgues
	if err := e.checkBoundary(ctx, d); err != nil {
		return e.close(d), err
	}
	d.states = append(d.states, StateAnalystArgues)
	if err := e.argueTurn(ctx, d, model.RoleAnalyst); err != nil {
		return e.close(d), err
	}

	// SkepticRebuts
	if err := e.checkBoundary(ctx, d); err != nil {
		return e.close(d), err
	}
	d.states = append(d.states, StateSkepticRebuts)
	if err := e.argueTurn(ctx, d, model.RoleSkeptic); err != nil {
		return e.close(d), err
	}

	// CrossExamination: up to K alternating rounds with a repetition guard.
	if e.cfg.MaxCrossRounds > 0 {
		d.states = append(d.states, StateCrossExamination)
	}
	for round := 0; round < e.cfg.MaxCrossRounds; round++ {
		if err := e.checkBoundary(ctx, d); err != nil {
			return e.close(d), err
		}
		stale, err := e.crossRound(ctx, d)
		if err != nil {
			return e.close(d), err
		}
		if stale {
			break
		}
	}

	// JudgeRules
	if err := e.checkBoundary(ctx, d); err != nil {
		return e.close(d), err
	}
	d.states = append(d.states, StateJudgeRules)
	verdict, err := e.judge(ctx, d)
	if err != nil {
		return e.close(d), err
	}

	outcome := e.close(d)
	outcome.Verdict = *verdict
	return outcome, nil
}

// close freezes the turn log; Closed is terminal and reached exactly once.
func (e *Engine) close(d *run) *Outcome {
	d.states = append(d.states, StateClosed)
	return &Outcome{
		Turns:  d.turns,
		States: d.states,
		Notes:  d.notes,
	}
}

func (e *Engine) checkBoundary(ctx context.Context, d *run) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", model.ErrCancelled, ctx.Err())
	default:
		return nil
	}
}

// argueTurn produces one Analyst or Skeptic turn with citation enforcement:
// citing evidence outside the retrieved set is rejected, retried once with
// an explicit instruction, then kept with citations stripped.
func (e *Engine) argueTurn(ctx context.Context, d *run, role model.Role) error {
	result, err := e.generate(ctx, d, role, "")
	if err != nil {
		return err
	}

	valid, invalid := e.splitCitations(d, result.Citations)
	if len(invalid) > 0 {
		e.logger.Warn("turn cited evidence outside the retrieved set, retrying",
			zap.String("claim", d.claim.ID), zap.String("role", string(role)),
			zap.Strings("invalid", invalid))

		retry, err := e.generate(ctx, d, role, fmt.Sprintf(
			"Your previous answer cited unknown evidence ids %v. Cite ONLY ids from the evidence list, or cite nothing.", invalid))
		if err == nil {
			if rv, ri := e.splitCitations(d, retry.Citations); len(ri) == 0 {
				result, valid = retry, rv
			} else {
				valid = nil
				d.notes = append(d.notes, fmt.Sprintf("%s: no citation available (invalid citations rejected twice)", role))
			}
		} else {
			valid = nil
			d.notes = append(d.notes, fmt.Sprintf("%s: no citation available (invalid citations rejected)", role))
		}
	}

	d.appendTurn(role, result.Text, valid, e.now())
	return nil
}

// crossRound runs one rebuttal/counter-rebuttal exchange. It reports
// stale=true when either side repeats itself or concedes.
func (e *Engine) crossRound(ctx context.Context, d *run) (bool, error) {
	for _, role := range []model.Role{model.RoleAnalyst, model.RoleSkeptic} {
		if err := e.argueTurn(ctx, d, role); err != nil {
			return false, err
		}
		if e.repetitive(d, role) {
			return true, nil
		}
	}
	return false, nil
}

// repetitive checks the role's newest turn against its previous one.
func (e *Engine) repetitive(d *run, role model.Role) bool {
	last := d.turns[len(d.turns)-1]
	if strings.Contains(strings.ToLower(last.Text), noNewArgument) {
		return true
	}

	for i := len(d.turns) - 2; i >= 0; i-- {
		if d.turns[i].Role == role {
			return evidence.Similarity(last.Text, d.turns[i].Text) >= e.cfg.RepetitionThreshold
		}
	}
	return false
}

// judge produces the calibrated verdict from the full turn log.
func (e *Engine) judge(ctx context.Context, d *run) (*model.Verdict, error) {
	result, err := e.generate(ctx, d, model.RoleJudge, "")
	if err != nil {
		return nil, err
	}

	supporting, _ := e.splitCitations(d, result.Supporting)
	contradicting, _ := e.splitCitations(d, result.Contradicting)

	verdict := &model.Verdict{
		Label:         model.ParseLabel(result.Label),
		Confidence:    result.Confidence,
		Supporting:    supporting,
		Contradicting: contradicting,
		Rationale:     result.Rationale,
	}

	e.calibrate(d, verdict)

	judgeText := result.Rationale
	if judgeText == "" {
		judgeText = result.Text
	}
	d.appendTurn(model.RoleJudge, judgeText, append(append([]string{}, supporting...), contradicting...), e.now())

	return verdict, nil
}

// calibrate enforces the evidence-coverage rules: confidence is bounded by
// coverage, not by argument fluency.
func (e *Engine) calibrate(d *run, v *model.Verdict) {
	// No evidence at all: True/Fake are unreachable and confidence sits at
	// the low ceiling.
	if len(d.evidence) == 0 {
		if v.Label != model.LabelUnverified {
			d.notes = append(d.notes, "verdict degraded to UNVERIFIED: no evidence retrieved")
			v.Label = model.LabelUnverified
		}
		if v.Confidence > e.cfg.LowCeiling {
			v.Confidence = e.cfg.LowCeiling
		}
		return
	}

	// Contradictory high-trust evidence on both sides forces UNVERIFIED.
	if e.hasHighTrust(d, v.Supporting) && e.hasHighTrust(d, v.Contradicting) {
		if v.Label != model.LabelUnverified {
			d.notes = append(d.notes, "verdict forced to UNVERIFIED: high-trust evidence on both sides")
			v.Label = model.LabelUnverified
		}
		return
	}

	// Majority-position citations must span enough independent domains.
	majority := v.Supporting
	if v.Label == model.LabelFake {
		majority = v.Contradicting
	}
	if v.Label != model.LabelUnverified && e.distinctDomains(d, majority) < e.cfg.MinIndependentDomains {
		if v.Confidence > e.cfg.LowCeiling {
			d.notes = append(d.notes, fmt.Sprintf(
				"confidence capped at %.2f: fewer than %d independent domains support the verdict",
				e.cfg.LowCeiling, e.cfg.MinIndependentDomains))
			v.Confidence = e.cfg.LowCeiling
		}
	}
}

func (e *Engine) hasHighTrust(d *run, ids []string) bool {
	for _, id := range ids {
		if item, ok := d.known[id]; ok && item.TrustScore >= e.highTrust {
			return true
		}
	}
	return false
}

func (e *Engine) distinctDomains(d *run, ids []string) int {
	domains := make(map[string]bool)
	for _, id := range ids {
		if item, ok := d.known[id]; ok && item.Domain != "" {
			domains[item.Domain] = true
		}
	}
	return len(domains)
}

// generate calls the provider with the per-state retry.
func (e *Engine) generate(ctx context.Context, d *run, role model.Role, instruction string) (*llm.TurnResult, error) {
	req := llm.TurnRequest{
		Role:        role,
		ClaimText:   d.claim.Text,
		Subclaims:   d.claim.Subclaims,
		Evidence:    d.evidence,
		PriorTurns:  d.turns,
		Instruction: instruction,
	}

	result, err := e.provider.GenerateTurn(ctx, req)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCancelled, ctx.Err())
	}

	e.logger.Warn("turn generation failed, retrying once",
		zap.String("claim", d.claim.ID), zap.String("role", string(role)), zap.Error(err))

	result, err = e.provider.GenerateTurn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s turn: %v", model.ErrReasoningUnavailable, role, err)
	}
	return result, nil
}

// splitCitations partitions citation ids into known and unknown.
func (e *Engine) splitCitations(d *run, ids []string) (valid, invalid []string) {
	for _, id := range ids {
		if _, ok := d.known[id]; ok {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

func (d *run) appendTurn(role model.Role, text string, citations []string, at time.Time) {
	d.seq++
	d.turns = append(d.turns, model.DebateTurn{
		Seq:       d.seq,
		Role:      role,
		ClaimID:   d.claim.ID,
		Citations: citations,
		Text:      text,
		CreatedAt: at,
	})
}
