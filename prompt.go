package main

import (
	"fmt"
	"regexp"
	"strings"
)

//////////////////////////////////////////////////////////////
// RULES PROMPT
//////////////////////////////////////////////////////////////

const PROMPT_PLACEHOLDER = "{MESSAGE_CONTENT}"

// DefaultRulesPrompt is used unless RULES_PROMPT_FILE points elsewhere.
const DefaultRulesPrompt = `
Analyze the following WhatsApp message. Decide if it violates the group rules.
Rules:
1. No slurs or hate speech.
2. No excessive informality (e.g., excessive slang, abbreviations understandable only to a small group, very poor grammar/spelling).
3. No spam or irrelevant links.
4. Keep the conversation respectful.

Message:
"""
{MESSAGE_CONTENT}
"""

Based ONLY on the rules and the message content, answer with ONE word: 'DELETE' if it violates the rules, or 'KEEP' if it does not.
`

func ValidatePrompt(template string) error {
	if !strings.Contains(template, PROMPT_PLACEHOLDER) {
		return fmt.Errorf("rules prompt is missing the %s placeholder", PROMPT_PLACEHOLDER)
	}
	return nil
}

var tripleQuote = regexp.MustCompile(`"{3,}`)

// RenderPrompt substitutes the message into the first placeholder. Quote runs
// inside the message are collapsed so it cannot close the """ block early.
func RenderPrompt(template, message string) string {
	message = tripleQuote.ReplaceAllString(message, `"`)
	return strings.Replace(template, PROMPT_PLACEHOLDER, message, 1)
}

//////////////////////////////////////////////////////////////
// PROMPT INJECTION DETECTION
//////////////////////////////////////////////////////////////

var injectionPatterns = []string{
	"system prompt",
	"ignore previous",
	"ignore all previous",
	"ignore your instructions",
	"ignore the rules",
	"disregard previous",
	"new instructions",
	"system:",
	"assistant:",
	"you are now",
	"forget everything",
	"jailbreak",
	"developer mode",
	"answer keep",
	"reply keep",
	"respond with keep",
	"say keep",
}

// detectPromptInjection reports the first jailbreak-style phrase in text, if any.
// It is only logged; the verdict stays with the model.
func detectPromptInjection(text string) (string, bool) {
	lowerText := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lowerText, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// truncate shortens s to n runes for logging.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
