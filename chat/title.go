package chat

import "strings"

const titleMaxRunes = 50

// DeriveTitle produces a conversation title from its first user message:
// the first 50 characters, with an ellipsis when the message is longer.
func DeriveTitle(firstMessage string) string {
	title := strings.TrimSpace(firstMessage)
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes]) + "…"
}
