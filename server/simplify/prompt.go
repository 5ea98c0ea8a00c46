package simplify

import (
	"fmt"

	"github.com/teilomillet/gollm"
)

// TruncationMarker is appended to report text that was cut at the
// truncation threshold, so the model knows content is missing.
const TruncationMarker = "\n\n[Report truncated due to length]"

// systemPrompt fixes the model's persona and the required output structure.
// The reply must be plain text; keywords are attached statically, not
// parsed from the output.
const systemPrompt = `You are a medical communication assistant. You rewrite medical reports into plain language that a patient with no medical background can understand.

Structure every reply with exactly these section headings:

What this report says
Key findings
What you can do next

Rules:
- Preserve medical accuracy. Never invent findings or omit abnormal values.
- Explain medical terms in everyday words the first time they appear.
- Keep each section to a few short sentences.
- Do not diagnose. Encourage the patient to discuss results with their doctor.
- Reply in plain text only. No JSON, no markdown tables, no code blocks.`

// buildPrompt assembles the two-message prompt for one simplification.
func buildPrompt(text, targetLang, tone string) *gollm.Prompt {
	user := fmt.Sprintf(`Rewrite the following medical report for the patient.

Target language: %s
Tone: %s

Medical report:
%s

Reply in plain text using the section headings from your instructions, in the target language, with the requested tone.`, targetLang, tone, text)

	return &gollm.Prompt{
		Messages: []gollm.PromptMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	}
}

// Truncate cuts text to at most maxChars characters (runes) and appends the
// truncation marker when content was cut. maxChars <= 0 disables truncation.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	return string(runes[:maxChars]) + TruncationMarker, true
}
