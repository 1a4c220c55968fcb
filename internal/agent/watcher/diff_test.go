package watcher

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffIdentical(t *testing.T) {
	d := diffLines("a\nb\nc", "a\nb\nc")
	assert.Equal(t, 0, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.Equal(t, "", d.Excerpt)
}

func TestDiffInsertion(t *testing.T) {
	d := diffLines("a\nb\nc", "a\nx\ny\nb\nc")
	assert.Equal(t, 2, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.Equal(t, "+ x\n+ y", d.Excerpt)
}

func TestDiffDeletion(t *testing.T) {
	d := diffLines("a\nx\ny\nb\nc", "a\nb\nc")
	assert.Equal(t, 0, d.Added)
	assert.Equal(t, 2, d.Removed)
	assert.Equal(t, "- x\n- y", d.Excerpt)
}

func TestDiffReplacement(t *testing.T) {
	// Neither side's line reappears: a remove+add pair per position.
	d := diffLines("a\nold\nc", "a\nnew\nc")
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Removed)
	assert.Equal(t, "- old\n+ new", d.Excerpt)
}

func TestDiffTrailingChanges(t *testing.T) {
	d := diffLines("a\nb", "a\nb\nc\nd")
	assert.Equal(t, 2, d.Added)
	assert.Equal(t, 0, d.Removed)

	d = diffLines("a\nb\nc\nd", "a\nb")
	assert.Equal(t, 0, d.Added)
	assert.Equal(t, 2, d.Removed)
}

func TestDiffNearerMatchWins(t *testing.T) {
	// "b" reappears one line ahead in the new text, so the scan treats
	// "x" as inserted rather than rewriting the tail.
	d := diffLines("b\nc", "x\nb\nc")
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.Equal(t, "+ x", d.Excerpt)
}

func TestDiffExcerptTail(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 30; i++ {
		newLines = append(newLines, fmt.Sprintf("line %d", i))
	}
	d := diffLines(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	assert.Equal(t, 30, d.Added)
	assert.Contains(t, d.Excerpt, "+ line 0")
	assert.Contains(t, d.Excerpt, "+ line 9")
	assert.NotContains(t, d.Excerpt, "+ line 10")
	assert.Contains(t, d.Excerpt, "(+20 more added, -0 more removed)")
}

func TestDiffBailsOutOnHugeFiles(t *testing.T) {
	big := strings.Repeat("x\n", maxDiffLines+10)
	d := diffLines("a", big)
	assert.Contains(t, d.Excerpt, "File too large to diff")
	assert.Equal(t, maxDiffLines+10, d.Added)
	assert.Equal(t, 0, d.Removed)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 1, countLines(""))
	assert.Equal(t, 1, countLines("a"))
	assert.Equal(t, 2, countLines("a\n"))
	assert.Equal(t, 3, countLines("a\nb\nc"))
}
