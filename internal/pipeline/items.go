package pipeline

import "time"

// TextItem is one recognized source-language line moving between the
// recognition and translation stages.
type TextItem struct {
	// PairID links the recognized line to its translation across outputs.
	PairID string

	// Text is the recognized source-language text.
	Text string

	// At is when the line was recognized.
	At time.Time

	// retries counts how many times this line has re-entered the
	// translation queue after a failure.
	retries int
}

// TranslatedItem is one translated line leaving the translation stage.
type TranslatedItem struct {
	// PairID matches the TextItem this translation came from.
	PairID string

	// Source is the recognized source-language text.
	Source string

	// Text is the translated text.
	Text string

	// At is when the translation completed.
	At time.Time
}
