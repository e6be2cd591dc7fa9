package parser_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/causekit/causekit/internal/parser"
	"github.com/causekit/causekit/pkg/models"
)

func TestParseTableDropsMismatchedRow(t *testing.T) {
	raw := strings.Join([]string{
		"## Problem Assessment",
		"",
		"| Step | Finding |",
		"|------|---------|",
		"| 1 | Disk failure |",
		"| 2 | Controller fault | extra |",
	}, "\n")

	reply := parser.Parse(raw)

	if len(reply.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(reply.Sections))
	}
	sec := reply.Sections[0]
	if sec.Key != "problem assessment" || sec.Kind != models.SectionTable {
		t.Fatalf("section = %q kind %q", sec.Key, sec.Kind)
	}
	wantTable := &models.TableContent{
		Headers: []string{"Step", "Finding"},
		Rows:    [][]string{{"1", "Disk failure"}},
	}
	if diff := cmp.Diff(wantTable, sec.Table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
	wantWarn := "table 'problem assessment' row 2 dropped: expected 2 columns, got 3"
	if len(reply.Warnings) != 1 || reply.Warnings[0] != wantWarn {
		t.Errorf("warnings = %v, want [%q]", reply.Warnings, wantWarn)
	}
}

func TestParseJSONAndNarrative(t *testing.T) {
	raw := `{"severity": "High", "root_cause": "disk"}

## Recommendations
Replace the disk promptly.
Verify RAID health.`

	reply := parser.Parse(raw)

	if got := reply.StructuredFields["severity"]; got != "High" {
		t.Errorf("severity = %v", got)
	}
	if got := reply.StructuredFields["root_cause"]; got != "disk" {
		t.Errorf("root_cause = %v", got)
	}
	if len(reply.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(reply.Sections))
	}
	sec := reply.Sections[0]
	if sec.Key != "recommendations" || sec.Kind != models.SectionNarrative {
		t.Errorf("section = %q kind %q", sec.Key, sec.Kind)
	}
	if !strings.Contains(sec.Text, "RAID health") {
		t.Errorf("text = %q", sec.Text)
	}
	if len(reply.Warnings) != 0 {
		t.Errorf("warnings = %v", reply.Warnings)
	}
}

func TestParseMalformedJSONIsNonFatal(t *testing.T) {
	raw := `{"severity": "High",}

## Summary
The cluster recovered after failover.`

	reply := parser.Parse(raw)

	if len(reply.StructuredFields) != 0 {
		t.Errorf("fields = %v, want empty", reply.StructuredFields)
	}
	if len(reply.Warnings) != 1 || !strings.Contains(reply.Warnings[0], "not parseable") {
		t.Errorf("warnings = %v", reply.Warnings)
	}
	if len(reply.Sections) != 1 || reply.Sections[0].Key != "summary" {
		t.Fatalf("sections = %+v", reply.Sections)
	}
}

func TestParseUnclosedJSON(t *testing.T) {
	reply := parser.Parse(`analysis follows {"severity": "High"`)
	if reply.StructuredFields != nil {
		t.Errorf("fields = %v, want nil", reply.StructuredFields)
	}
	if len(reply.Warnings) != 1 || !strings.Contains(reply.Warnings[0], "never closes") {
		t.Errorf("warnings = %v", reply.Warnings)
	}
}

func TestParseNoJSONNoWarning(t *testing.T) {
	reply := parser.Parse("## Notes\nAll components nominal.")
	if reply.StructuredFields != nil || len(reply.Warnings) != 0 {
		t.Errorf("fields = %v warnings = %v", reply.StructuredFields, reply.Warnings)
	}
}

func TestParseBracesInsideStrings(t *testing.T) {
	raw := `{"summary": "escalate via {oncall} now", "path": "C:\\logs\\}x{", "count": 3} trailing prose`

	reply := parser.Parse(raw)

	if len(reply.Warnings) != 0 {
		t.Fatalf("warnings = %v", reply.Warnings)
	}
	if got := reply.StructuredFields["summary"]; got != "escalate via {oncall} now" {
		t.Errorf("summary = %v", got)
	}
	if got := reply.StructuredFields["path"]; got != `C:\logs\}x{` {
		t.Errorf("path = %v", got)
	}
	if got := reply.StructuredFields["count"]; got != float64(3) {
		t.Errorf("count = %v", got)
	}
}

func TestParseDuplicateHeadings(t *testing.T) {
	raw := "## Timeline\nfirst\n\n## Timeline\nsecond"

	reply := parser.Parse(raw)

	if len(reply.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(reply.Sections))
	}
	if reply.Sections[0].Key != "timeline" || reply.Sections[1].Key != "timeline-2" {
		t.Errorf("keys = %q, %q", reply.Sections[0].Key, reply.Sections[1].Key)
	}
	if reply.Sections[0].Text != "first" || reply.Sections[1].Text != "second" {
		t.Errorf("texts = %q, %q", reply.Sections[0].Text, reply.Sections[1].Text)
	}
}

func TestParseEscapedPipeCell(t *testing.T) {
	raw := strings.Join([]string{
		"## Environment",
		"| Var | Value |",
		"|-----|-------|",
		`| PATH | a \| b |`,
	}, "\n")

	reply := parser.Parse(raw)

	sec := reply.Sections[0]
	if sec.Table == nil || len(sec.Table.Rows) != 1 {
		t.Fatalf("table = %+v", sec.Table)
	}
	if got := sec.Table.Rows[0][1]; got != "a | b" {
		t.Errorf("cell = %q, want %q", got, "a | b")
	}
}

func TestParseBoldPseudoHeading(t *testing.T) {
	raw := strings.Join([]string{
		"**Root Cause**",
		"Thermal runaway in bay 4.",
		"**3.**",
		"More detail.",
	}, "\n")

	reply := parser.Parse(raw)

	if len(reply.Sections) != 1 {
		t.Fatalf("sections = %+v", reply.Sections)
	}
	sec := reply.Sections[0]
	if sec.Key != "root cause" || sec.Title != "Root Cause" {
		t.Errorf("section = %q / %q", sec.Key, sec.Title)
	}
	// Numbering-only bold lines are emphasis, not headings.
	if !strings.Contains(sec.Text, "**3.**") {
		t.Errorf("text = %q", sec.Text)
	}
}

func TestParseListSection(t *testing.T) {
	raw := "## Action Items\n- upgrade firmware\n- add watchdog alerting"
	reply := parser.Parse(raw)
	if len(reply.Sections) != 1 || reply.Sections[0].Kind != models.SectionList {
		t.Fatalf("sections = %+v", reply.Sections)
	}
}

// ktReply mirrors the shape real analyses come back in: a fenced JSON
// object, numbered template subsections, an IS / IS NOT table with empty
// cells, and a closing recommendation list.
const ktReply = "Here is the structured analysis:\n" +
	"\n" +
	"```json\n" +
	"{\n" +
	"  \"executive_summary\": \"Storage node failed under load.\",\n" +
	"  \"root_cause\": \"Firmware race in the disk controller\",\n" +
	"  \"severity\": \"High\",\n" +
	"  \"defect_tickets_needed\": \"Yes, controller firmware fix\"\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"---\n" +
	"\n" +
	"### a) Kepner-Tregoe Problem Analysis Template\n" +
	"\n" +
	"#### 1. Problem Statement\n" +
	"Node N2 crashed during nightly backup.\n" +
	"\n" +
	"#### 2. Problem Specification\n" +
	"**2.1.** IS: cluster-a only.\n" +
	"\n" +
	"### b) Problem Assessment\n" +
	"\n" +
	"| Dimension | IS | IS NOT |\n" +
	"|-----------|----|--------|\n" +
	"| **What** | Node crash | Data loss |\n" +
	"| **Where** | cluster-a | |\n" +
	"\n" +
	"## Recommendations\n" +
	"- Upgrade controller firmware\n" +
	"- Add watchdog alerting\n"

func TestParseKtShapedReply(t *testing.T) {
	reply := parser.Parse(ktReply)

	if len(reply.Warnings) != 0 {
		t.Fatalf("warnings = %v", reply.Warnings)
	}
	if got := reply.StructuredFields["severity"]; got != "High" {
		t.Errorf("severity = %v", got)
	}
	if got := reply.StructuredFields["executive_summary"]; got != "Storage node failed under load." {
		t.Errorf("executive_summary = %v", got)
	}

	wantKeys := []string{
		"a kepner tregoe problem analysis template",
		"1 problem statement",
		"2 problem specification",
		"b problem assessment",
		"recommendations",
	}
	if len(reply.Sections) != len(wantKeys) {
		t.Fatalf("sections = %d, want %d", len(reply.Sections), len(wantKeys))
	}
	for i, want := range wantKeys {
		if reply.Sections[i].Key != want {
			t.Errorf("section[%d] = %q, want %q", i, reply.Sections[i].Key, want)
		}
	}

	assessment := reply.Sections[3]
	if assessment.Kind != models.SectionTable || assessment.Table == nil {
		t.Fatalf("assessment = %+v", assessment)
	}
	wantRows := [][]string{
		{"**What**", "Node crash", "Data loss"},
		{"**Where**", "cluster-a", ""},
	}
	if diff := cmp.Diff(wantRows, assessment.Table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if reply.Sections[4].Kind != models.SectionList {
		t.Errorf("recommendations kind = %q", reply.Sections[4].Kind)
	}
}

func TestParseIdempotent(t *testing.T) {
	first := parser.Parse(ktReply)
	second := parser.Parse(ktReply)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("parse not deterministic (-first +second):\n%s", diff)
	}
}
