package model

import "time"

// QuestionType classifies the shape of the question being asked, chosen
// from a closed set the Hypothesis Generator and Response Planner both
// understand.
type QuestionType string

const (
	QuestionFact         QuestionType = "fact"
	QuestionComparison   QuestionType = "comparison"
	QuestionProcedural   QuestionType = "procedural"
	QuestionCalculation  QuestionType = "calculation"
	QuestionOpinion      QuestionType = "opinion"
	QuestionTimeline     QuestionType = "timeline"
	QuestionCausal       QuestionType = "causal"
	QuestionHypothetical QuestionType = "hypothetical"
)

// ConfidenceLevel is the Hypothesis Generator's self-reported confidence
// in its own analysis, never a numeric probability.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceUnknown ConfidenceLevel = "unknown"
)

// GapSeverity ranks how badly an information gap blocks a good answer.
type GapSeverity string

const (
	GapCritical  GapSeverity = "critical"
	GapImportant GapSeverity = "important"
	GapOptional  GapSeverity = "optional"
)

// InformationGap names one piece of missing context, along with how the
// pipeline might go fetch it.
type InformationGap struct {
	Kind           string      `json:"kind"`
	Severity       GapSeverity `json:"severity"`
	SuggestedQuery string      `json:"suggested_query,omitempty"`
	Examples       []string    `json:"examples,omitempty"`
}

// Hypothesis is the structured pre-execution analysis of a query: what
// kind of question it is, what's missing to answer it well, and what
// steps would plausibly answer it.
type Hypothesis struct {
	QuestionType         QuestionType      `json:"question_type"`
	PrimaryIntent        string            `json:"primary_intent"`
	Confidence           ConfidenceLevel   `json:"confidence"`
	RequiredInformation  []string          `json:"required_information"`
	InformationGaps      []InformationGap  `json:"information_gaps"`
	Assumptions          []string          `json:"assumptions"`
	SuggestedSteps       []string          `json:"suggested_steps"`
	Keywords             []string          `json:"keywords"`
	Timestamp            time.Time         `json:"timestamp"`
}

// RequiresClarification reports whether any information gap is severe
// enough that the pipeline should ask the user a question instead of
// answering outright. It is derived, not stored, so it can never drift
// out of sync with InformationGaps.
func (h Hypothesis) RequiresClarification() bool {
	for _, g := range h.InformationGaps {
		if g.Severity == GapCritical {
			return true
		}
	}
	return false
}

// Valid reports whether h satisfies the schema invariants: a
// high-confidence hypothesis may not carry a critical gap, and
// RequiresClarification must agree with the presence of a critical gap
// (which it always does, being derived — this checks QuestionType and
// Confidence are non-empty too).
func (h Hypothesis) Valid() bool {
	if h.QuestionType == "" || h.Confidence == "" {
		return false
	}
	if h.Confidence == ConfidenceHigh {
		for _, g := range h.InformationGaps {
			if g.Severity == GapCritical {
				return false
			}
		}
	}
	return true
}

// Fallback builds the structurally-valid hypothesis returned whenever
// hypothesis generation fails for any reason (LLM error, unparsable
// response, timeout). It carries the raw query text as its intent so a
// caller can still show the user something.
func Fallback(queryText string) Hypothesis {
	return Hypothesis{
		QuestionType:        QuestionFact,
		PrimaryIntent:       queryText,
		Confidence:          ConfidenceUnknown,
		RequiredInformation: nil,
		InformationGaps:     nil,
		Assumptions:         nil,
		SuggestedSteps:      nil,
		Keywords:            nil,
		Timestamp:           time.Now(),
	}
}
