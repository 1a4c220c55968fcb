package watcher

import (
	"fmt"
	"strings"
)

// maxDiffLines caps the per-side line count the diff will scan. Larger
// files get a placeholder with length-delta accounting.
const maxDiffLines = 2000

// maxExcerptLines is the per-direction cap for the diff excerpt.
const maxExcerptLines = 10

type diffResult struct {
	Added   int
	Removed int
	Excerpt string
}

// countLines matches the wire accounting for whole-file adds/removes.
func countLines(s string) int {
	return len(strings.Split(s, "\n"))
}

// diffLines compares two texts line by line in a single forward scan.
// At a mismatch it looks ahead on both sides for the first reappearance
// of the other side's current line and advances the side with the
// nearer match, emitting the skipped lines as added or removed. When
// neither line reappears it emits a remove+add pair and advances both.
func diffLines(oldText, newText string) diffResult {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	if len(oldLines) > maxDiffLines || len(newLines) > maxDiffLines {
		res := diffResult{
			Excerpt: fmt.Sprintf("File too large to diff (%d -> %d lines)", len(oldLines), len(newLines)),
		}
		if delta := len(newLines) - len(oldLines); delta > 0 {
			res.Added = delta
		} else {
			res.Removed = -delta
		}
		return res
	}

	var added, removed []string
	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i >= len(oldLines):
			added = append(added, newLines[j])
			j++
		case j >= len(newLines):
			removed = append(removed, oldLines[i])
			i++
		case oldLines[i] == newLines[j]:
			i++
			j++
		default:
			oldReappears := indexOf(newLines[j+1:], oldLines[i])
			newReappears := indexOf(oldLines[i+1:], newLines[j])
			switch {
			case oldReappears < 0 && newReappears < 0:
				removed = append(removed, oldLines[i])
				added = append(added, newLines[j])
				i++
				j++
			case newReappears < 0 || (oldReappears >= 0 && oldReappears <= newReappears):
				// The current old line comes back soon in the new
				// text; everything before it was inserted.
				for k := 0; k <= oldReappears; k++ {
					added = append(added, newLines[j])
					j++
				}
			default:
				for k := 0; k <= newReappears; k++ {
					removed = append(removed, oldLines[i])
					i++
				}
			}
		}
	}

	return diffResult{
		Added:   len(added),
		Removed: len(removed),
		Excerpt: buildExcerpt(removed, added),
	}
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	return -1
}

// buildExcerpt renders up to maxExcerptLines per direction in unified
// style, with a summary tail for the remainder.
func buildExcerpt(removed, added []string) string {
	var b strings.Builder
	for i, line := range removed {
		if i == maxExcerptLines {
			break
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	for i, line := range added {
		if i == maxExcerptLines {
			break
		}
		b.WriteString("+ ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	moreAdded := len(added) - maxExcerptLines
	moreRemoved := len(removed) - maxExcerptLines
	if moreAdded > 0 || moreRemoved > 0 {
		if moreAdded < 0 {
			moreAdded = 0
		}
		if moreRemoved < 0 {
			moreRemoved = 0
		}
		b.WriteString(fmt.Sprintf("... (+%d more added, -%d more removed)\n", moreAdded, moreRemoved))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
