package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	// Rune count, not byte count.
	assert.Equal(t, 1, EstimateTokens("日本語"))
}

func TestEstimateMessagesTokens(t *testing.T) {
	messages := []Message{
		UserMessage("abcd"),
		AssistantMessage("abcdefgh"),
	}
	assert.Equal(t, 3, EstimateMessagesTokens(messages))
}
