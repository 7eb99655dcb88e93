package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/revittco/toolgw/internal/store"
	"gopkg.in/yaml.v3"
)

// Catalog is the startup tool catalog: a declarative set of tool
// definitions synced into the store at process start.
type Catalog struct {
	Tools []CatalogEntry `yaml:"tools"`
}

// CatalogEntry describes one tool in the YAML catalog.
type CatalogEntry struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	BackendURL    string         `yaml:"backend_url"`
	Scope         string         `yaml:"scope"`
	RiskLevel     string         `yaml:"risk_level"`
	RequiredRoles []string       `yaml:"required_roles,omitempty"`
	Categories    []string       `yaml:"categories,omitempty"`
	InputSchema   map[string]any `yaml:"input_schema,omitempty"`
	IsActive      *bool          `yaml:"is_active,omitempty"` // nil means active
}

func (e CatalogEntry) active() bool {
	return e.IsActive == nil || *e.IsActive
}

// LoadCatalogFile reads and parses a YAML tool catalog file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML. Duplicate tool names are
// a startup error.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse tool catalog yaml: %w", err)
	}

	seen := make(map[string]bool, len(cat.Tools))
	for _, t := range cat.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool catalog: entry with empty name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tool catalog: duplicate tool name %q", t.Name)
		}
		seen[t.Name] = true
	}
	return &cat, nil
}

// Sync upserts every catalog entry by name and deactivates (soft-deletes)
// any existing active tool row whose name is absent from the catalog. It
// runs inside a single transaction and is idempotent: applying the same
// catalog twice produces no further row changes.
func Sync(ctx context.Context, s store.Store, cat *Catalog) error {
	return s.Tx(ctx, func(tx store.Store) error {
		catalogNames := make(map[string]bool, len(cat.Tools))
		for _, e := range cat.Tools {
			catalogNames[e.Name] = true
			if err := upsertTool(ctx, tx, e); err != nil {
				return fmt.Errorf("sync tool %q: %w", e.Name, err)
			}
		}
		return deactivateMissing(ctx, tx, catalogNames)
	})
}

func upsertTool(ctx context.Context, tx store.Store, e CatalogEntry) error {
	var schema json.RawMessage
	if len(e.InputSchema) > 0 {
		b, err := json.Marshal(e.InputSchema)
		if err != nil {
			return err
		}
		schema = b
	}

	existing, err := tx.GetToolByName(ctx, e.Name)
	if errors.Is(err, store.ErrNotFound) {
		t := &store.Tool{
			Name:          e.Name,
			Description:   e.Description,
			BackendURL:    e.BackendURL,
			Scope:         e.Scope,
			RiskLevel:     defaultRiskLevel(e.RiskLevel),
			RequiredRoles: e.RequiredRoles,
			Categories:    e.Categories,
			InputSchema:   schema,
			IsActive:      e.active(),
		}
		return tx.CreateTool(ctx, t)
	}
	if err != nil {
		return err
	}

	// An unchanged entry is not rewritten, so a re-sync leaves the row
	// (including updated_at) untouched.
	if existing.Description == e.Description && existing.BackendURL == e.BackendURL &&
		existing.Scope == e.Scope && existing.RiskLevel == defaultRiskLevel(e.RiskLevel) &&
		slices.Equal(existing.RequiredRoles, e.RequiredRoles) && slices.Equal(existing.Categories, e.Categories) &&
		bytes.Equal(existing.InputSchema, schema) && existing.IsActive == e.active() {
		return nil
	}

	existing.Description = e.Description
	existing.BackendURL = e.BackendURL
	existing.Scope = e.Scope
	existing.RiskLevel = defaultRiskLevel(e.RiskLevel)
	existing.RequiredRoles = e.RequiredRoles
	existing.Categories = e.Categories
	existing.InputSchema = schema
	existing.IsActive = e.active()
	return tx.UpdateTool(ctx, existing)
}

func deactivateMissing(ctx context.Context, tx store.Store, catalogNames map[string]bool) error {
	all, err := tx.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools for prune: %w", err)
	}
	for _, t := range all {
		if t.IsActive && !catalogNames[t.Name] {
			slog.Info("deactivating tool missing from catalog", "name", t.Name)
			if err := tx.DeactivateTool(ctx, t.Name); err != nil {
				return fmt.Errorf("deactivate %q: %w", t.Name, err)
			}
		}
	}
	return nil
}

func defaultRiskLevel(s string) string {
	if s == "" {
		return "low"
	}
	return s
}
