package parser

import (
	"fmt"
	"strings"

	"github.com/causekit/causekit/pkg/models"
)

// tableScan is the result of pulling one table out of a section block:
// the table itself, the [start,end) line span it consumed, and warnings
// for rows that were dropped.
type tableScan struct {
	table    *models.TableContent
	start    int
	end      int
	warnings []string
}

// extractTable finds the first markdown table in a block: a row line with
// at least two pipes immediately followed by a separator line. Rows whose
// cell count differs from the header are dropped with a warning, never
// padded or truncated. Lines marked fenced are code and never part of a
// table.
func extractTable(key string, lines []string, fenced []bool) *tableScan {
	for i := 0; i+1 < len(lines); i++ {
		if fenced[i] || fenced[i+1] {
			continue
		}
		if countPipes(lines[i]) < 2 || !isSeparatorLine(lines[i+1]) {
			continue
		}

		headers := splitRow(lines[i])
		rows := [][]string{}
		var warnings []string
		rowNum := 0
		j := i + 2
		for ; j < len(lines); j++ {
			if fenced[j] || countPipes(lines[j]) == 0 {
				break
			}
			// Models sometimes emit extra separator lines between row
			// groups; they carry no data.
			if isSeparatorLine(lines[j]) {
				continue
			}
			rowNum++
			cells := splitRow(lines[j])
			if len(cells) != len(headers) {
				warnings = append(warnings, fmt.Sprintf(
					"table '%s' row %d dropped: expected %d columns, got %d",
					key, rowNum, len(headers), len(cells)))
				continue
			}
			rows = append(rows, cells)
		}

		return &tableScan{
			table:    &models.TableContent{Headers: headers, Rows: rows},
			start:    i,
			end:      j,
			warnings: warnings,
		}
	}
	return nil
}

// countPipes counts unescaped pipe characters in a line.
func countPipes(line string) int {
	n := 0
	escaped := false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case line[i] == '\\':
			escaped = true
		case line[i] == '|':
			n++
		}
	}
	return n
}

// isSeparatorLine matches the header separator: only pipes, dashes,
// colons, and spaces, with at least one dash and one pipe.
func isSeparatorLine(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.ContainsRune(s, '-') || !strings.ContainsRune(s, '|') {
		return false
	}
	for _, r := range s {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// splitRow splits one table row into trimmed cells. Escaped pipes stay
// literal; the empty boundary cells produced by a leading or trailing
// pipe are removed, but interior empty cells survive.
func splitRow(line string) []string {
	s := strings.TrimSpace(line)
	var cells []string
	var cur strings.Builder
	escaped := false
	trailingPipe := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			if c != '|' {
				cur.WriteByte('\\')
			}
			cur.WriteByte(c)
			escaped = false
			trailingPipe = false
		case c == '\\':
			escaped = true
		case c == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			trailingPipe = true
		default:
			cur.WriteByte(c)
			if c != ' ' && c != '\t' {
				trailingPipe = false
			}
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	cells = append(cells, strings.TrimSpace(cur.String()))

	if len(cells) > 0 && strings.HasPrefix(s, "|") {
		cells = cells[1:]
	}
	if len(cells) > 0 && trailingPipe {
		cells = cells[:len(cells)-1]
	}
	return cells
}
