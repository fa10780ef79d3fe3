package contextwindow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFit_AsIsWhenWithinWindow(t *testing.T) {
	messages := []Message{{Role: "user", Content: "short question"}}
	res := Fit(messages, 250, "large")
	assert.Equal(t, StrategyAsIs, res.Strategy)
	assert.Equal(t, messages, res.FinalMessages)
}

func TestFit_TruncatesOldestFirst(t *testing.T) {
	big := strings.Repeat("word ", 2000)
	messages := []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: big},
		{Role: "assistant", Content: big},
		{Role: "user", Content: "final short question"},
	}
	res := Fit(messages, 250, "small")
	assert.Contains(t, []Strategy{StrategyTruncateOldest, StrategySummariseTail, StrategyDegradeModel}, res.Strategy)
	// system message always survives truncation
	assert.Equal(t, "system", res.FinalMessages[0].Role)
}

func TestFit_DegradesWhenNothingElseFits(t *testing.T) {
	huge := strings.Repeat("word ", 50000)
	messages := []Message{{Role: "user", Content: huge}}
	res := Fit(messages, 7900, "small")
	assert.Equal(t, StrategyDegradeModel, res.Strategy)
	assert.NotEmpty(t, res.SuggestedModel)
}

func TestEstimateTokens_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestWindowFor_UnknownModelDefaultsSmall(t *testing.T) {
	assert.Equal(t, defaultWindow, WindowFor("totally-unknown-model"))
}
