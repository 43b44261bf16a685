package debate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
)

// scriptedProvider replays a fixed sequence of turn results and records
// every request it receives.
type scriptedProvider struct {
	script   []scriptStep
	requests []llm.TurnRequest
}

type scriptStep struct {
	result *llm.TurnResult
	err    error
}

func (p *scriptedProvider) Name() string                         { return "scripted" }
func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) ExtractClaims(ctx context.Context, text string) (*llm.ClaimPlan, error) {
	return nil, errors.New("not scripted")
}

func (p *scriptedProvider) PlanQueries(ctx context.Context, claimText string, max int) ([]string, error) {
	return nil, errors.New("not scripted")
}

func (p *scriptedProvider) GenerateTurn(ctx context.Context, req llm.TurnRequest) (*llm.TurnResult, error) {
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return &llm.TurnResult{Text: "default", Label: "UNVERIFIED", Confidence: 0.3}, nil
	}
	step := p.script[0]
	p.script = p.script[1:]
	return step.result, step.err
}

func argue(text string, citations ...string) scriptStep {
	return scriptStep{result: &llm.TurnResult{Text: text, Citations: citations}}
}

func rule(label string, conf float64, supporting, contradicting []string) scriptStep {
	return scriptStep{result: &llm.TurnResult{
		Text:          "ruling",
		Label:         label,
		Confidence:    conf,
		Rationale:     "weighed the record",
		Supporting:    supporting,
		Contradicting: contradicting,
	}}
}

func fail(msg string) scriptStep {
	return scriptStep{err: errors.New(msg)}
}

func testConfig() model.DebateConfig {
	return model.DebateConfig{
		MaxCrossRounds:        2,
		RepetitionThreshold:   0.85,
		MinIndependentDomains: 2,
		LowCeiling:            0.40,
	}
}

func testClaim() model.Claim {
	return model.Claim{ID: "c1", JobID: "j1", Text: "the rover landed in 2021"}
}

func testEvidence() []model.EvidenceItem {
	return []model.EvidenceItem{
		{ID: "ev1", URL: "https://nasa.gov/a", Domain: "nasa.gov", Snippet: "landing confirmed", TrustScore: 1.0},
		{ID: "ev2", URL: "https://reuters.com/b", Domain: "reuters.com", Snippet: "touchdown reported", TrustScore: 0.95},
		{ID: "ev3", URL: "https://example.org/c", Domain: "example.org", Snippet: "blog speculation", TrustScore: 0.30},
	}
}

func TestRun_HappyPath(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("the landing is well documented", "ev1"),
		argue("the blog post disputes the date", "ev3"),
		argue("official telemetry settles the date", "ev2"),
		argue("I have no new argument to add"),
		rule("TRUE", 0.9, []string{"ev1", "ev2"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Verdict.Label != model.LabelTrue {
		t.Errorf("label = %s, want TRUE", out.Verdict.Label)
	}
	if out.Verdict.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", out.Verdict.Confidence)
	}

	wantStates := []State{StateOpening, StateAnalystArgues, StateSkepticRebuts, StateCrossExamination, StateJudgeRules, StateClosed}
	if len(out.States) != len(wantStates) {
		t.Fatalf("states = %v, want %v", out.States, wantStates)
	}
	for i, s := range wantStates {
		if out.States[i] != s {
			t.Errorf("states[%d] = %s, want %s", i, out.States[i], s)
		}
	}

	// Analyst, skeptic, one cross round ended by the marker, judge.
	if len(out.Turns) != 5 {
		t.Fatalf("turns = %d, want 5", len(out.Turns))
	}
	for i, turn := range out.Turns {
		if turn.Seq != i+1 {
			t.Errorf("turn %d seq = %d, want %d", i, turn.Seq, i+1)
		}
		if turn.ClaimID != "c1" {
			t.Errorf("turn %d claim = %s, want c1", i, turn.ClaimID)
		}
	}
}

func TestRun_ClosedExactlyOnce(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("a", "ev1"),
		argue("b", "ev3"),
		argue("no new argument"),
		rule("UNVERIFIED", 0.3, nil, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	closed := 0
	for i, s := range out.States {
		if s == StateClosed {
			closed++
			if i != len(out.States)-1 {
				t.Errorf("Closed at index %d is not terminal", i)
			}
		}
	}
	if closed != 1 {
		t.Errorf("Closed reached %d times, want 1", closed)
	}
}

func TestRun_CrossRoundsBounded(t *testing.T) {
	// Every turn is fresh text with a valid citation, so only the K bound
	// can stop cross-examination.
	provider := &scriptedProvider{script: []scriptStep{
		argue("opening argument about telemetry records", "ev1"),
		argue("rebuttal citing the skeptical blog post", "ev3"),
		argue("first rebuttal about orbital imaging data", "ev2"),
		argue("first counter about sensor calibration drift", "ev3"),
		argue("second rebuttal about independent press coverage", "ev1"),
		argue("second counter about anonymous sourcing concerns", "ev3"),
		rule("TRUE", 0.8, []string{"ev1", "ev2"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// analyst + skeptic + 2*MaxCrossRounds + judge
	if len(out.Turns) != 7 {
		t.Errorf("turns = %d, want 7", len(out.Turns))
	}
	if len(provider.requests) != 7 {
		t.Errorf("provider calls = %d, want 7", len(provider.requests))
	}
}

func TestRun_RepetitionGuardEndsCross(t *testing.T) {
	// The analyst's first cross turn repeats its opening verbatim.
	provider := &scriptedProvider{script: []scriptStep{
		argue("the telemetry record confirms the landing date", "ev1"),
		argue("the blog disputes the official account", "ev3"),
		argue("the telemetry record confirms the landing date", "ev1"),
		rule("TRUE", 0.7, []string{"ev1", "ev2"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Turns) != 4 {
		t.Errorf("turns = %d, want 4 (cross ended after the repeated turn)", len(out.Turns))
	}
}

func TestRun_InvalidCitationRetried(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("cites something unknown", "ev-bogus"),
		argue("cites the real record", "ev1"),
		argue("skeptic turn", "ev3"),
		argue("no new argument"),
		rule("TRUE", 0.8, []string{"ev1", "ev2"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	analyst := out.Turns[0]
	if len(analyst.Citations) != 1 || analyst.Citations[0] != "ev1" {
		t.Errorf("analyst citations = %v, want [ev1]", analyst.Citations)
	}
	if len(provider.requests) < 2 || !strings.Contains(provider.requests[1].Instruction, "ev-bogus") {
		t.Errorf("retry instruction should name the rejected ids, got %q", provider.requests[1].Instruction)
	}
}

func TestRun_InvalidCitationTwiceStripped(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("cites something unknown", "ev-bogus"),
		argue("still cites something unknown", "ev-fake"),
		argue("skeptic turn", "ev3"),
		argue("no new argument"),
		rule("UNVERIFIED", 0.3, nil, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.Turns[0].Citations) != 0 {
		t.Errorf("citations = %v, want none after two rejections", out.Turns[0].Citations)
	}
	found := false
	for _, note := range out.Notes {
		if strings.Contains(note, "no citation available") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 'no citation available' note, got %v", out.Notes)
	}
}

func TestRun_ZeroEvidenceDegradesVerdict(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("confident but uncited argument"),
		argue("nothing to rebut against"),
		argue("no new argument"),
		rule("TRUE", 0.95, nil, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Verdict.Label != model.LabelUnverified {
		t.Errorf("label = %s, want UNVERIFIED with no evidence", out.Verdict.Label)
	}
	if out.Verdict.Confidence > 0.40 {
		t.Errorf("confidence = %v, want <= low ceiling 0.40", out.Verdict.Confidence)
	}
}

func TestRun_ContradictoryHighTrustForcesUnverified(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		argue("nasa confirms it", "ev1"),
		argue("reuters contradicts it", "ev2"),
		argue("no new argument"),
		rule("TRUE", 0.9, []string{"ev1"}, []string{"ev2"}),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Verdict.Label != model.LabelUnverified {
		t.Errorf("label = %s, want UNVERIFIED when high-trust sources conflict", out.Verdict.Label)
	}
}

func TestRun_ThinCoverageCapsConfidence(t *testing.T) {
	// All supporting citations share one domain.
	provider := &scriptedProvider{script: []scriptStep{
		argue("single-source argument", "ev1"),
		argue("skeptic turn", "ev3"),
		argue("no new argument"),
		rule("TRUE", 0.9, []string{"ev1"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Verdict.Label != model.LabelTrue {
		t.Errorf("label = %s, want TRUE", out.Verdict.Label)
	}
	if out.Verdict.Confidence != 0.40 {
		t.Errorf("confidence = %v, want capped to 0.40 with one domain", out.Verdict.Confidence)
	}
}

func TestRun_ReasoningUnavailableAfterRetry(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		fail("model offline"),
		fail("model still offline"),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if !errors.Is(err, model.ErrReasoningUnavailable) {
		t.Fatalf("err = %v, want ErrReasoningUnavailable", err)
	}
	if out == nil {
		t.Fatal("partial outcome should still be returned")
	}
	if out.States[len(out.States)-1] != StateClosed {
		t.Errorf("final state = %s, want closed even on failure", out.States[len(out.States)-1])
	}
}

func TestRun_TransientFailureRetriedOnce(t *testing.T) {
	provider := &scriptedProvider{script: []scriptStep{
		fail("blip"),
		argue("recovered analyst turn", "ev1"),
		argue("skeptic turn", "ev3"),
		argue("no new argument"),
		rule("TRUE", 0.8, []string{"ev1", "ev2"}, nil),
	}}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	out, err := engine.Run(context.Background(), testClaim(), testEvidence())
	if err != nil {
		t.Fatalf("Run failed after recoverable blip: %v", err)
	}
	if out.Turns[0].Text != "recovered analyst turn" {
		t.Errorf("first turn = %q, want the retried result", out.Turns[0].Text)
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{}
	engine := NewEngine(provider, testConfig(), 0.85, nil)

	_, err := engine.Run(ctx, testClaim(), testEvidence())
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(provider.requests) != 0 {
		t.Errorf("provider called %d times after cancellation, want 0", len(provider.requests))
	}
}
