package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Hello", DeriveTitle("Hello"))
	assert.Equal(t, "Hello", DeriveTitle("  Hello \n"))

	long := strings.Repeat("a", 60)
	title := DeriveTitle(long)
	assert.Equal(t, strings.Repeat("a", 50)+"…", title)
	assert.Len(t, []rune(title), 51)

	// Exactly at the limit: no ellipsis.
	exact := strings.Repeat("b", 50)
	assert.Equal(t, exact, DeriveTitle(exact))

	// Rune-aware truncation for multibyte text.
	wide := strings.Repeat("语", 60)
	assert.Equal(t, strings.Repeat("语", 50)+"…", DeriveTitle(wide))
}

func TestDraftStore(t *testing.T) {
	drafts := NewMemoryDraftStore()

	drafts.Save("conv-a", "unsent text")
	drafts.Save("conv-b", "other draft")
	assert.Equal(t, "unsent text", drafts.Load("conv-a"))
	assert.Equal(t, "other draft", drafts.Load("conv-b"))

	drafts.Clear("conv-a")
	assert.Empty(t, drafts.Load("conv-a"))
	assert.Equal(t, "other draft", drafts.Load("conv-b"))

	// Saving empty text drops the draft.
	drafts.Save("conv-b", "")
	assert.Empty(t, drafts.Load("conv-b"))
}
