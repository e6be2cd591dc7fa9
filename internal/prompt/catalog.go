package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Catalog is a thread-safe template registry. Built-in templates are
// always available; YAML files in the configured directory are loaded
// on top and override built-ins with the same id.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*models.Template // key: template id
}

// NewCatalog builds the catalog: built-ins first, then the optional
// template directory. A missing directory is not an error; unreadable
// or malformed files are skipped with a warning.
func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*models.Template)}
	c.loadBuiltins()

	if dir != "" {
		if err := c.loadDir(dir); err != nil {
			return nil, err
		}
	}

	log.Info().Int("templates", len(c.templates)).Str("dir", dir).Msg("Template catalog loaded")
	return c, nil
}

// Lookup returns the template with the given id.
func (c *Catalog) Lookup(id string) (*models.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return nil, &store.ErrNotFound{Entity: "template", Key: id}
	}
	copy := *t
	return &copy, nil
}

// List returns all templates ordered by id.
func (c *Catalog) List() []*models.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*models.Template, 0, len(c.templates))
	for _, t := range c.templates {
		copy := *t
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// register stores a template, replacing any existing entry with the
// same id.
func (c *Catalog) register(t *models.Template) {
	c.mu.Lock()
	c.templates[t.ID] = t
	c.mu.Unlock()
}

// loadDir reads every .yaml/.yml file in dir as one template document.
func (c *Catalog) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", dir).Msg("Template dir does not exist, using built-ins only")
			return nil
		}
		return fmt.Errorf("read template dir %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		t, err := loadTemplateFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable template file")
			continue
		}
		c.register(t)
		loaded++
	}

	if loaded > 0 {
		log.Info().Int("files", loaded).Str("dir", dir).Msg("Loaded template files")
	}
	return nil
}

func loadTemplateFile(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t models.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("template %s: id is required", path)
	}
	if t.Body == "" {
		return nil, fmt.Errorf("template %s: body is required", path)
	}
	return &t, nil
}

// Compile-time check that Catalog implements the catalog contract.
var _ contracts.TemplateCatalog = (*Catalog)(nil)
