package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	assert.Equal(t, "abc", Window("abc", 10))
	assert.Equal(t, "ab", Window("abcdef", 2))
	// "é" is two bytes; never split it.
	assert.Equal(t, "a", Window("aé", 2))
}

func TestExcerpt(t *testing.T) {
	content := strings.Repeat("x", 100) + "Width: 30 in" + strings.Repeat("y", 100)

	got := Excerpt(content, "width", 40)
	assert.Len(t, got, 40)
	assert.Contains(t, got, "Width")

	assert.Equal(t, content[:40], Excerpt(content, "missing", 40))
	assert.Equal(t, "short", Excerpt("short", "x", 40))

	tail := Excerpt(content, "yyyy", 40)
	assert.Len(t, tail, 40)
}
