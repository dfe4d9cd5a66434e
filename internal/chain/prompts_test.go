package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iris0/iris/internal/corpus"
)

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	assert.Empty(t, formatHistory(nil))

	got := formatHistory([]Turn{
		{Question: "What is a corneal abrasion?", Answer: "A scratch on the cornea."},
		{Question: "How is it treated?", Answer: "Lubrication and monitoring."},
	})
	want := "Human: What is a corneal abrasion?\n" +
		"Assistant: A scratch on the cornea.\n" +
		"Human: How is it treated?\n" +
		"Assistant: Lubrication and monitoring.\n"
	assert.Equal(t, want, got)
}

func TestRenderCondensePrompt(t *testing.T) {
	t.Parallel()

	got := renderCondensePrompt([]Turn{{Question: "q1", Answer: "a1"}}, "How is it treated?")
	assert.Contains(t, got, "rephrase the follow up question to be a standalone question")
	assert.Contains(t, got, "Human: q1\nAssistant: a1\n")
	assert.Contains(t, got, "Follow Up Input: How is it treated?")
	assert.Contains(t, got, "Standalone question:")
}

func TestRenderQAPrompt(t *testing.T) {
	t.Parallel()

	passages := []corpus.Passage{
		{ID: "p1", Content: "First passage."},
		{ID: "p2", Content: "Second passage."},
	}
	got := renderQAPrompt("What is a corneal abrasion?", passages)

	assert.Contains(t, got, "You are an ophthalmologist providing advice to other providers.")
	assert.Contains(t, got, "DO NOT try to make up an answer.")
	assert.Contains(t, got, "[Confidence: 90%]")
	assert.Contains(t, got, "First passage.\n\nSecond passage.")
	assert.Contains(t, got, "Question: What is a corneal abrasion?")
	assert.Contains(t, got, "Helpful answer in markdown:")
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		answer string
		want   int
	}{
		{"typical", "The cornea heals quickly. [Confidence: 90%]", 90},
		{"extra whitespace", "Answer. [Confidence:  75%]", 75},
		{"zero", "I don't know. [Confidence: 0%]", 0},
		{"hundred", "Certain. [Confidence: 100%]", 100},
		{"missing", "No annotation here.", -1},
		{"out of range", "Sure. [Confidence: 120%]", -1},
		{"malformed", "Sure. [Confidence: high]", -1},
		{"empty", "", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseConfidence(tt.answer))
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "condensing", StateCondensing.String())
	assert.Equal(t, "retrieving", StateRetrieving.String())
	assert.Equal(t, "generating", StateGenerating.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
