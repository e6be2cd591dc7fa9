// Package evidence resolves the evidence references of an analysis
// request into text. Each source kind (local file, URL, Jira ticket) has
// its own Source; the Collector fans fetches out concurrently while
// keeping the caller's item order. A single item failing to resolve is
// dropped with a warning and never aborts collection.
package evidence

import (
	"github.com/causekit/causekit/pkg/models"
)

// Collection is the outcome of resolving one request's evidence list.
// Dropped holds one warning per item that failed to resolve; these
// downgrade the run outcome. Notes are informational (redacted
// credentials) and surface in the analysis result without affecting the
// outcome status.
type Collection struct {
	Items   []models.EvidenceItem
	Dropped []string
	Notes   []string
}
