package evidence

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
)

// URLSource fetches http(s) pages. HTML responses are reduced to their
// visible text; everything else is passed through as-is. Redirects are
// followed (http.Client default).
type URLSource struct {
	client   *http.Client
	maxBytes int64
}

func NewURLSource(cfg config.EvidenceConfig) *URLSource {
	timeout := time.Duration(cfg.FetchTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &URLSource{
		client:   &http.Client{Timeout: timeout},
		maxBytes: cfg.MaxFileBytes,
	}
}

func (s *URLSource) Kind() models.SourceKind { return models.SourceURL }

func (s *URLSource) Fetch(ctx context.Context, identifier string) (*models.EvidenceItem, error) {
	u, err := url.Parse(identifier)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch URL: HTTP %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, s.maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	text := string(body)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml") {
		text = stripHTML(text)
	}

	return &models.EvidenceItem{
		SourceKind: models.SourceURL,
		Identifier: identifier,
		Text:       text,
		Metadata: map[string]string{
			"content_type": contentType,
			"status":       strconv.Itoa(resp.StatusCode),
			"fetched_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// stripHTML reduces an HTML document to its visible text: script and
// style blocks removed, tags dropped, entities decoded, blank lines
// squeezed out.
func stripHTML(raw string) string {
	text := scriptStyleRe.ReplaceAllString(raw, "\n")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
