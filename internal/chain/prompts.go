package chain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iris0/iris/internal/corpus"
)

// condensePrompt rewrites a follow-up question into a standalone question.
// The model must preserve the asker's intent without introducing new facts.
const condensePrompt = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

// qaPrompt grounds the answer in retrieved context only. The model is told to
// refuse rather than fabricate, and to append a self-reported confidence
// annotation in the form [Confidence: NN%].
const qaPrompt = `You are an ophthalmologist providing advice to other providers. Use the following pieces of context to answer the question at the end.
Be as thorough as possible with your answers. Think it out step by step. Explain your reasoning.
If you don't know the answer, just say you don't know. DO NOT try to make up an answer.
If the question is not related to the context, politely respond that you are tuned to only answer questions that are related to the context.
After your response, please provide the level of confidence you have in your answer in the format of the following example: [Confidence: 90%%].

%s

Question: %s
Helpful answer in markdown:`

// refusalAnswer is the deterministic "don't know" branch for an empty
// context; there is nothing to ground an answer on, so the model is not
// called at all.
const refusalAnswer = "I don't know. I could not find any relevant context to answer this question. [Confidence: 0%]"

// formatHistory renders history as alternating question/answer lines for the
// condense prompt.
func formatHistory(history []Turn) string {
	var b strings.Builder
	for _, turn := range history {
		b.WriteString("Human: ")
		b.WriteString(turn.Question)
		b.WriteByte('\n')
		b.WriteString("Assistant: ")
		b.WriteString(turn.Answer)
		b.WriteByte('\n')
	}
	return b.String()
}

// formatContext joins passage contents into the context block of the QA
// prompt, in retrieval order.
func formatContext(passages []corpus.Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n\n")
}

func renderCondensePrompt(history []Turn, followUp string) string {
	return fmt.Sprintf(condensePrompt, formatHistory(history), followUp)
}

func renderQAPrompt(question string, passages []corpus.Passage) string {
	return fmt.Sprintf(qaPrompt, formatContext(passages), question)
}

var confidencePattern = regexp.MustCompile(`\[Confidence:\s*(\d{1,3})%\]`)

// ParseConfidence extracts the model's self-reported confidence percentage
// from an answer. Returns -1 when the annotation is absent or out of range.
// The value is model-emitted free text; treat it as advisory.
func ParseConfidence(answer string) int {
	m := confidencePattern.FindStringSubmatch(answer)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return -1
	}
	return n
}
