package intent

import "regexp"

// defaultPatterns implements the rule tier's decision tree. Order
// matters: patterns are tried top-to-bottom and the first match with
// confidence >= MinRuleConfidence wins (spec §4.1).
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Intent:     "calculation",
			Regex:      regexp.MustCompile(`(wie\s?viel|wieviel|kosten|gebühr|gebuehr|preis|berechnen)`),
			Confidence: 0.9,
		},
		{
			Intent:     "comparison",
			Regex:      regexp.MustCompile(`(unterschied|versus|im vergleich|vergleich|oder doch)`),
			Confidence: 0.85,
		},
		{
			Intent:     "procedural",
			Regex:      regexp.MustCompile(`^(wie (beantrage|melde|stelle)|wie kann ich|welche schritte|was muss ich tun)`),
			Confidence: 0.85,
		},
		{
			Intent:     "explanation",
			Regex:      regexp.MustCompile(`(warum|wieso|erkläre|erklaere|was bedeutet)`),
			Confidence: 0.8,
		},
		{
			Intent:     "analysis",
			Regex:      regexp.MustCompile(`(analysiere|bewerte|welche auswirkungen|inwiefern)`),
			Confidence: 0.75,
		},
		{
			Intent:     "quick_answer",
			Regex:      regexp.MustCompile(`^(was ist|wer ist|wo ist|wann)\s`),
			Confidence: 0.75,
		},
	}
}
