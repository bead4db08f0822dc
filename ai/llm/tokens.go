package llm

// Rough characters-per-token ratio for English text. The estimate feeds UI
// hints only, never billing.
const charsPerToken = 4

// EstimateTokens approximates the token count of a text by character count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len([]rune(text))
	tokens := n / charsPerToken
	if n%charsPerToken != 0 {
		tokens++
	}
	return tokens
}

// EstimateMessagesTokens approximates the token count of a message list.
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
