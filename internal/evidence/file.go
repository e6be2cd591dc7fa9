package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// FileSource reads local files. Extensions outside the allowlist and
// files over the size cap are rejected before any bytes are read.
type FileSource struct {
	allowedExts map[string]bool
	maxBytes    int64
}

func NewFileSource(cfg config.EvidenceConfig) *FileSource {
	exts := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		exts[strings.ToLower(ext)] = true
	}
	return &FileSource{allowedExts: exts, maxBytes: cfg.MaxFileBytes}
}

func (s *FileSource) Kind() models.SourceKind { return models.SourceFile }

func (s *FileSource) Fetch(ctx context.Context, identifier string) (*models.EvidenceItem, error) {
	ext := strings.ToLower(filepath.Ext(identifier))
	if len(s.allowedExts) > 0 && !s.allowedExts[ext] {
		return nil, fmt.Errorf("file extension %q not allowed", ext)
	}

	info, err := os.Stat(identifier)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", identifier)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), s.maxBytes)
	}

	data, err := os.ReadFile(identifier)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	sum := sha256.Sum256(data)
	return &models.EvidenceItem{
		SourceKind: models.SourceFile,
		Identifier: identifier,
		Text:       string(data),
		Metadata: map[string]string{
			"name":   filepath.Base(identifier),
			"bytes":  strconv.FormatInt(info.Size(), 10),
			"sha256": hex.EncodeToString(sum[:]),
		},
	}, nil
}
