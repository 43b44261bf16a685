package pipeline

import (
	"fmt"
	"strings"

	"github.com/agentra/factcheck/internal/model"
)

// Aggregate folds per-claim verdicts into the job verdict.
//
// Any claim judged FAKE at or above the high threshold makes the whole
// input FAKE. Otherwise the input is TRUE only when every claim is TRUE
// at or above the moderate threshold. Everything else is UNVERIFIED, with
// confidence capped at the low ceiling. The job rationale concatenates
// the per-claim rationales and degradation notes in claim order.
func Aggregate(claims []model.Claim, cfg model.DebateConfig) *model.Verdict {
	if len(claims) == 0 {
		return &model.Verdict{
			Label:      model.LabelUnverified,
			Confidence: 0,
			Rationale:  "no claims were verified",
		}
	}

	var (
		fakeConf   float64
		allTrue    = true
		minTrue    = 1.0
		supporting []string
		contra     []string
	)

	for _, claim := range claims {
		verdict := claim.Verdict
		if verdict == nil {
			allTrue = false
			continue
		}
		supporting = append(supporting, verdict.Supporting...)
		contra = append(contra, verdict.Contradicting...)

		switch verdict.Label {
		case model.LabelFake:
			allTrue = false
			if verdict.Confidence >= cfg.HighThreshold && verdict.Confidence > fakeConf {
				fakeConf = verdict.Confidence
			}
		case model.LabelTrue:
			if verdict.Confidence < cfg.ModerateThreshold {
				allTrue = false
			} else if verdict.Confidence < minTrue {
				minTrue = verdict.Confidence
			}
		default:
			allTrue = false
		}
	}

	rationale := joinRationales(claims)

	if fakeConf > 0 {
		return &model.Verdict{
			Label:         model.LabelFake,
			Confidence:    fakeConf,
			Supporting:    dedupeIDs(supporting),
			Contradicting: dedupeIDs(contra),
			Rationale:     rationale,
		}
	}

	if allTrue {
		return &model.Verdict{
			Label:         model.LabelTrue,
			Confidence:    minTrue,
			Supporting:    dedupeIDs(supporting),
			Contradicting: dedupeIDs(contra),
			Rationale:     rationale,
		}
	}

	conf := 0.0
	for _, claim := range claims {
		if claim.Verdict != nil && claim.Verdict.Confidence > conf {
			conf = claim.Verdict.Confidence
		}
	}
	if conf > cfg.LowCeiling {
		conf = cfg.LowCeiling
	}

	return &model.Verdict{
		Label:         model.LabelUnverified,
		Confidence:    conf,
		Supporting:    dedupeIDs(supporting),
		Contradicting: dedupeIDs(contra),
		Rationale:     rationale,
	}
}

// joinRationales concatenates each claim's rationale and its notes, in
// claim order. Notes carry degradations such as stripped citations and
// debates that did not complete, so they must survive into the job
// rationale.
func joinRationales(claims []model.Claim) string {
	parts := make([]string, 0, len(claims))
	for _, claim := range claims {
		bits := make([]string, 0, 1+len(claim.Notes))
		if claim.Verdict != nil && claim.Verdict.Rationale != "" {
			bits = append(bits, claim.Verdict.Rationale)
		}
		bits = append(bits, claim.Notes...)
		if len(bits) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", claim.Text, strings.Join(bits, "; ")))
	}
	if len(parts) == 0 {
		return "no claim produced a rationale"
	}
	return strings.Join(parts, " | ")
}

func dedupeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
