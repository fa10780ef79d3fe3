package hypothesis

import (
	"strings"
	"time"

	"github.com/jurisoracle/vrag/model"
)

var questionTypes = []model.QuestionType{
	model.QuestionFact, model.QuestionComparison, model.QuestionProcedural,
	model.QuestionCalculation, model.QuestionOpinion, model.QuestionTimeline,
	model.QuestionCausal, model.QuestionHypothetical,
}

var confidenceLevels = []model.ConfidenceLevel{
	model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow, model.ConfidenceUnknown,
}

var gapSeverities = []model.GapSeverity{
	model.GapCritical, model.GapImportant, model.GapOptional,
}

// matchEnum performs case-insensitive exact matching against candidates,
// falling back to substring matching in either direction, and finally to
// fallback if nothing is recognisable (spec §4.4: "unknown enums
// collapse to nearest legal value by substring match else unknown").
func matchEnum[T ~string](raw string, candidates []T, fallback T) T {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return fallback
	}
	for _, c := range candidates {
		if strings.EqualFold(string(c), lower) {
			return c
		}
	}
	for _, c := range candidates {
		cl := strings.ToLower(string(c))
		if strings.Contains(lower, cl) || strings.Contains(cl, lower) {
			return c
		}
	}
	return fallback
}

// normalize converts a leniently-parsed rawHypothesis into a
// structurally valid model.Hypothesis, enforcing the
// confidence=high => no critical gaps invariant even if the LLM
// violated it.
func normalize(raw rawHypothesis, queryText string) model.Hypothesis {
	qType := matchEnum(raw.QuestionType, questionTypes, model.QuestionFact)
	confidence := matchEnum(raw.Confidence, confidenceLevels, model.ConfidenceUnknown)

	gaps := make([]model.InformationGap, 0, len(raw.InformationGaps))
	for _, g := range raw.InformationGaps {
		severity := matchEnum(g.Severity, gapSeverities, model.GapOptional)
		gaps = append(gaps, model.InformationGap{
			Kind:           g.Kind,
			Severity:       severity,
			SuggestedQuery: g.SuggestedQuery,
			Examples:       g.Examples,
		})
	}

	if confidence == model.ConfidenceHigh {
		for _, g := range gaps {
			if g.Severity == model.GapCritical {
				confidence = model.ConfidenceMedium
				break
			}
		}
	}

	primaryIntent := raw.PrimaryIntent
	if primaryIntent == "" {
		primaryIntent = queryText
	}

	return model.Hypothesis{
		QuestionType:        qType,
		PrimaryIntent:       primaryIntent,
		Confidence:          confidence,
		RequiredInformation: raw.RequiredInformation,
		InformationGaps:     gaps,
		Assumptions:         raw.Assumptions,
		SuggestedSteps:      raw.SuggestedSteps,
		Keywords:            raw.Keywords,
		Timestamp:           time.Now(),
	}
}
