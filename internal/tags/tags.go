// Package tags parses structured "#name arg..." markers out of the comment
// text that precedes a declaration.
package tags

import (
	"iter"
	"regexp"
	"strings"
)

// Tag is a single marker. Args keep the order they were written in; quoted
// arguments keep their surrounding quotes.
type Tag struct {
	Name string
	Args []string
}

// Names of tags the index itself interprets.
const (
	EmptySuper   = "emptySuper"
	ExportGlobal = "exportGlobal"
)

var (
	lineRe = regexp.MustCompile(`^\s*(?://|\*)?\s*#(\w+)(\s+.+?)?\s*$`)
	argRe  = regexp.MustCompile(`("([^"]*)")|(\S+)`)
)

// Parse yields the tags found in text, one candidate per line. The sequence
// is computed lazily and is not restartable: iterating it a second time
// yields nothing.
func Parse(text string) iter.Seq[Tag] {
	lines := strings.Split(text, "\n")
	next := 0
	return func(yield func(Tag) bool) {
		for next < len(lines) {
			line := strings.TrimSuffix(lines[next], "\r")
			next++
			m := lineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			tag := Tag{Name: m[1], Args: []string{}}
			if rest := strings.TrimSpace(m[2]); rest != "" {
				tag.Args = argRe.FindAllString(rest, -1)
			}
			if !yield(tag) {
				return
			}
		}
	}
}

// Collect drains seq into a slice. It always returns a non-nil slice.
func Collect(seq iter.Seq[Tag]) []Tag {
	out := []Tag{}
	for t := range seq {
		out = append(out, t)
	}
	return out
}

// Has reports whether any tag in ts is named name.
func Has(ts []Tag, name string) bool {
	for _, t := range ts {
		if t.Name == name {
			return true
		}
	}
	return false
}
