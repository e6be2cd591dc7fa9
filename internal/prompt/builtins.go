package prompt

import "github.com/causekit/causekit/pkg/models"

// ktResponseFields are the structured fields every full analysis is
// asked to emit. The escalation policy reads escalation_needed,
// defect_tickets_needed and severity from them.
var ktResponseFields = []string{
	"executive_summary",
	"problem_statement",
	"timeline",
	"root_cause",
	"contributing_factors",
	"impact_assessment",
	"corrective_actions",
	"preventive_measures",
	"recommendations",
	"escalation_needed",
	"defect_tickets_needed",
	"severity",
	"priority",
}

var triageResponseFields = []string{
	"executive_summary",
	"problem_statement",
	"initial_findings",
	"likely_causes",
	"missing_information",
	"next_steps",
	"escalation_needed",
	"defect_tickets_needed",
	"severity",
	"priority",
}

const ktBody = `You are performing a structured root cause analysis using the
Kepner-Tregoe problem analysis method.

Work strictly from the issue description and source data provided
below. Never invent facts; where the data is silent, write "Not
specified".

After the JSON object described in the format instructions, produce
these formatted sections:

### a) Kepner-Tregoe Problem Analysis Template

#### 1. Problem Statement
Clearly define the problem, what is happening, and its effects.

#### 2. Problem Analysis
**2.1. Problem Details**: when and where the problem occurs, who is
affected, and the observed symptoms.
**2.2. Problem History**: what changed in the environment, and any
previous occurrences.

#### 3. Cause Analysis
**3.1. Potential Causes**
**3.2. Validation of Causes**: evidence supporting or eliminating each.
**3.3. Root Cause Identification**

#### 4. Solution Development
**4.1. Possible Solutions**
**4.2. Solution Evaluation**: effectiveness, feasibility, cost, and
time to implement.
**4.3. Recommended Solution**

#### 5. Action Plan
What needs to be done, by whom, by when, and with what resources.

#### 6. Follow-up
Metrics and a timeline to verify the problem stays resolved.

### b) Problem Assessment

A markdown table with the columns Problem Assessment | IS | IS NOT,
covering the What, Where, When and Extent dimensions of the problem.`

const formalRCABody = `You are writing a formal root cause analysis report suitable for
engineering review and customer communication.

Base every statement on the issue description and source data below.
Clearly separate observed facts from inference.

After the JSON object described in the format instructions, structure
the report with these sections:

## Executive Summary
## Problem Statement
## Timeline of Events
## Root Cause
## Contributing Factors
## Impact Assessment
## Corrective Actions
## Preventive Measures
## Recommendations`

const initialAnalysisBody = `You are performing a first-pass triage of a newly reported issue.
Work only from the issue description and source data below.

After the JSON object described in the format instructions, provide:

## Initial Findings
Key observations from the data, ordered by relevance.

## Likely Causes
Ranked hypotheses with the supporting evidence for each.

## Missing Information
What additional data would confirm or eliminate the hypotheses.

## Next Steps
Concrete actions, each with an owner role and the signal that tells
you it worked.`

// loadBuiltins seeds the catalog so analysis works with zero template
// configuration.
func (c *Catalog) loadBuiltins() {
	builtins := []*models.Template{
		{
			ID:             "kt-analysis",
			Title:          "Kepner-Tregoe Analysis",
			Description:    "Structured KT problem analysis with an IS / IS NOT assessment table.",
			Body:           ktBody,
			ResponseFields: ktResponseFields,
		},
		{
			ID:             "formal-rca",
			Title:          "Formal RCA Report",
			Description:    "Full root cause analysis report for engineering review.",
			Body:           formalRCABody,
			ResponseFields: ktResponseFields,
		},
		{
			ID:             "initial-analysis",
			Title:          "Initial Triage",
			Description:    "First-pass assessment of a new issue with ranked hypotheses.",
			Body:           initialAnalysisBody,
			ResponseFields: triageResponseFields,
		},
	}

	for _, t := range builtins {
		c.register(t)
	}
}
