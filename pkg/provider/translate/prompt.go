package translate

import "strings"

// DefaultSystemTemplate is the instruction template used when the
// configuration does not provide one. The {source_language} and
// {target_language} placeholders are replaced with full language names at
// render time.
const DefaultSystemTemplate = "You are a professional simultaneous interpreter. " +
	"Translate the speaker's {source_language} speech into {target_language}. " +
	"Reply with the translation only, without explanations or commentary."

// RenderSystemPrompt fills the language placeholders in a system template.
// An empty template falls back to DefaultSystemTemplate.
func RenderSystemPrompt(template, sourceLanguage, targetLanguage string) string {
	if template == "" {
		template = DefaultSystemTemplate
	}
	return strings.NewReplacer(
		"{source_language}", sourceLanguage,
		"{target_language}", targetLanguage,
	).Replace(template)
}

// BuildRequest assembles a Request from a rendered system prompt, the recent
// source-language lines kept for disambiguation, and the line to translate.
// Context lines are presented to the model but only the final line is to be
// translated.
func BuildRequest(systemPrompt string, recent []string, text string) Request {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Previous lines (context only, do not translate):\n")
		for _, line := range recent {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("\nTranslate this line:\n")
	}
	b.WriteString(text)
	return Request{SystemPrompt: systemPrompt, Text: b.String()}
}
