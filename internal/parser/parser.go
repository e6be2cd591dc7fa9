// Package parser reconstructs structure from free-form model replies.
//
// Two independent tracks run over the same text: a scan for the first
// top-level JSON object (the structured fields), and a split on markdown
// headings into ordered sections with table extraction. Either track may
// come up empty without failing the other; every non-fatal finding lands
// in Warnings. The parser is stateless: the same input always produces
// the same output.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/causekit/causekit/pkg/models"
)

var (
	atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	bulletRe     = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
)

// maxPseudoHeadingLen bounds how long a whole-line bold span may be and
// still count as a heading; longer spans are emphasized prose.
const maxPseudoHeadingLen = 64

// Parse converts one raw model reply into structured fields, ordered
// sections, and warnings.
func Parse(raw string) *models.ParsedReply {
	reply := &models.ParsedReply{}

	fields, warn := extractFirstJSON(raw)
	if warn != "" {
		reply.Warnings = append(reply.Warnings, warn)
	}
	reply.StructuredFields = fields

	seen := map[string]int{}
	for _, b := range splitBlocks(raw) {
		key := sectionKey(seen, b.title)
		sec, warns := buildSection(key, b)
		reply.Warnings = append(reply.Warnings, warns...)
		reply.Sections = append(reply.Sections, sec)
	}
	return reply
}

// block is one heading-delimited span of the reply. fenced marks lines
// inside ``` code fences, which are never headings or table rows.
type block struct {
	title  string
	lines  []string
	fenced []bool
}

// splitBlocks cuts the text into heading-delimited blocks. Text before
// the first heading (typically the JSON object or a preamble) belongs to
// no section.
func splitBlocks(raw string) []block {
	var blocks []block
	var cur *block
	inFence := false

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			if cur != nil {
				cur.lines = append(cur.lines, line)
				cur.fenced = append(cur.fenced, true)
			}
			continue
		}
		if !inFence {
			if title, ok := headingTitle(line); ok {
				flush()
				cur = &block{title: title}
				continue
			}
		}
		if cur != nil {
			cur.lines = append(cur.lines, line)
			cur.fenced = append(cur.fenced, inFence)
		}
	}
	flush()
	return blocks
}

// headingTitle recognizes ATX headings and whole-line bold pseudo-
// headings ("**Root Cause**"). A bold line only counts when it is short
// and contains at least one letter, so numbering markers like "**2.1.**"
// stay inside their section.
func headingTitle(line string) (string, bool) {
	if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
		return m[2], true
	}

	s := strings.TrimSpace(line)
	s = strings.TrimSuffix(s, ":")
	if len(s) < 5 || !strings.HasPrefix(s, "**") || !strings.HasSuffix(s, "**") {
		return "", false
	}
	if utf8.RuneCountInString(s) > maxPseudoHeadingLen {
		return "", false
	}
	inner := strings.TrimSpace(s[2 : len(s)-2])
	if inner == "" || strings.Contains(inner, "**") {
		return "", false
	}
	hasLetter := false
	for _, r := range inner {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", false
	}
	return inner, true
}

// sectionKey normalizes a heading into a stable key and disambiguates
// duplicates with a numeric suffix, keeping every occurrence.
func sectionKey(seen map[string]int, title string) string {
	key := normalizeKey(title)
	if key == "" {
		key = "section"
	}
	seen[key]++
	if n := seen[key]; n > 1 {
		return fmt.Sprintf("%s-%d", key, n)
	}
	return key
}

// normalizeKey lowercases the title, collapses whitespace, and strips
// punctuation. The output alphabet is letters, digits, and single
// spaces, which keeps the "-N" duplicate suffix collision-free.
func normalizeKey(title string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// buildSection classifies one block as table, list, or narrative.
func buildSection(key string, b block) (models.StructuredSection, []string) {
	sec := models.StructuredSection{
		Key:   key,
		Title: b.title,
		Kind:  models.SectionNarrative,
	}

	if ts := extractTable(key, b.lines, b.fenced); ts != nil {
		sec.Kind = models.SectionTable
		sec.Table = ts.table
		rest := append(append([]string{}, b.lines[:ts.start]...), b.lines[ts.end:]...)
		sec.Text = strings.TrimSpace(strings.Join(rest, "\n"))
		return sec, ts.warnings
	}

	sec.Text = strings.TrimSpace(strings.Join(b.lines, "\n"))
	if isListBlock(b.lines) {
		sec.Kind = models.SectionList
	}
	return sec, nil
}

// isListBlock reports whether every non-empty line is a bullet or
// numbered item, with at least two of them.
func isListBlock(lines []string) bool {
	items := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !bulletRe.MatchString(line) {
			return false
		}
		items++
	}
	return items >= 2
}
