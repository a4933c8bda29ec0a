package flow

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/FounderLoop/interviewbot/internal/models"
)

// Prompt composition constants.
const (
	// MinPersonaConformity and MaxPersonaConformity bound the randomized
	// degree (percent) to which the simulated customer sticks to the
	// founder's persona description.
	MinPersonaConformity = 30
	MaxPersonaConformity = 80

	// MinLengthMultiplier and MaxLengthMultiplier bound the noise applied to
	// the current turn's word count before selecting a response-length tier.
	MinLengthMultiplier = 0.7
	MaxLengthMultiplier = 1.3

	// conciseWordThreshold and moderateWordThreshold split the noisy word
	// count into the three response-length tiers.
	conciseWordThreshold  = 12
	moderateWordThreshold = 40
)

// Response-length tier instructions.
const (
	tierConcise       = "Respond concisely, in one or two short sentences."
	tierModerate      = "Respond with a moderately detailed answer, a short paragraph at most."
	tierComprehensive = "Respond with a comprehensive, thorough answer."
)

// feedbackRubric is the fixed instruction set for feedback mode, referencing
// The Mom Test interviewing methodology.
const feedbackRubric = "The founder has finished practicing a customer interview with you. " +
	"Review the transcript below against The Mom Test principles and give detailed, actionable feedback. In particular:\n" +
	"- Point out questions that fished for compliments or pitched the idea instead of asking about the customer's life.\n" +
	"- Point out hypothetical questions ('would you...') that should have been questions about past behavior ('when did you last...').\n" +
	"- Highlight moments where the founder accepted vague claims without digging for specifics.\n" +
	"- Call out missed opportunities to ask about money, time, or workarounds already in use.\n" +
	"- End with the three most important improvements for the next interview."

// Composer builds system instructions for the completion client. It performs
// no I/O and is deterministic given its random draws; the randomness source
// is injected for testability.
type Composer struct {
	rng *rand.Rand
}

// NewComposer creates a Composer drawing from the given source.
func NewComposer(src rand.Source) *Composer {
	return &Composer{rng: rand.New(src)}
}

// InterviewInstruction builds the interview-mode system instruction from the
// founder's profile, the conversation so far, and the current turn.
func (c *Composer) InterviewInstruction(user models.User, history models.Transcript, currentTurn string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a startup interview practice chatbot for startup founders. The founder's name is %s. ", user.Name)
	fmt.Fprintf(&b, "You are role-playing one of their potential customers. Their target customer is described as: %s. ", user.TargetPersona)
	fmt.Fprintf(&b, "Adopt a persona only loosely and partially consistent with that description: stay roughly %d%% consistent with it, and let the rest of your character be your own. ", c.conformityDegree())
	b.WriteString("Be willing to diverge from the description whenever the conversation reveals new information about who you are. ")
	b.WriteString("Before finalizing each reply, privately check that it does not contradict anything you said earlier; do not mention this check. ")
	b.WriteString(c.lengthInstruction(currentTurn))

	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Fprintf(&b, "\n\nFor short-term memory, this was the most recent exchange:\nFounder: %s\nYou: %s", last.User, last.Bot)
	}
	return b.String()
}

// FeedbackInstruction builds the feedback-mode system instruction embedding
// the full interview transcript and the fixed rubric.
func (c *Composer) FeedbackInstruction(user models.User, interview models.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an interview coach for startup founders. The founder's name is %s. ", user.Name)
	fmt.Fprintf(&b, "Their target customer is described as: %s.\n\n", user.TargetPersona)
	b.WriteString(feedbackRubric)
	b.WriteString("\n\nInterview transcript:\n")
	b.WriteString(formatTranscript(interview))
	return b.String()
}

// conformityDegree draws the persona conformity percentage.
func (c *Composer) conformityDegree() int {
	return MinPersonaConformity + c.rng.IntN(MaxPersonaConformity-MinPersonaConformity+1)
}

// lengthInstruction selects a response-length tier from a noisy function of
// the current turn's word count.
func (c *Composer) lengthInstruction(turn string) string {
	multiplier := MinLengthMultiplier + c.rng.Float64()*(MaxLengthMultiplier-MinLengthMultiplier)
	return lengthTier(len(strings.Fields(turn)), multiplier)
}

// lengthTier maps a word count and multiplier to a tier instruction. For a
// fixed multiplier the selected tier never shortens as the word count grows.
func lengthTier(wordCount int, multiplier float64) string {
	effective := float64(wordCount) * multiplier
	switch {
	case effective < conciseWordThreshold:
		return tierConcise
	case effective < moderateWordThreshold:
		return tierModerate
	default:
		return tierComprehensive
	}
}

// formatTranscript renders a transcript as alternating founder/customer
// lines for embedding in a prompt.
func formatTranscript(t models.Transcript) string {
	if len(t) == 0 {
		return "(no turns)"
	}
	var b strings.Builder
	for _, turn := range t {
		fmt.Fprintf(&b, "Founder: %s\nCustomer: %s\n", turn.User, turn.Bot)
	}
	return b.String()
}
