package translate

import (
	"fmt"
	"strings"
)

// DefaultDirective is used when no language-specific directive is available.
const DefaultDirective = "Translate the speaker's words from the source language into the target language, preserving meaning and tone. Output only the translation."

// Language describes a translation target.
type Language struct {
	Code  string // ISO 639-1 code, e.g. "ja"
	Name  string // Display name used in prompts and status messages
	Voice string // Synthesizer voice id
}

func (l Language) String() string {
	if l.Name == "" {
		return l.Code
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.Code)
}

// Directive builds the system instruction for translating from source into
// target.
func Directive(source, target Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional real-time interpreter. Translate %s speech into %s.\n", source, target)
	b.WriteString("Rules:\n")
	b.WriteString("1. Keep the original meaning and tone.\n")
	b.WriteString("2. Use natural, fluent phrasing a native speaker would use.\n")
	b.WriteString("3. Keep names and technical terms accurate.\n")
	b.WriteString("4. Output only the translation, with no prefix, notes or quotes.\n")
	b.WriteString("5. If a word was misheard, infer the most likely meaning from context.")
	return b.String()
}
