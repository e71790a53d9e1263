package email

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"

	"placement/internal/types"
)

//go:embed templates/*.html templates/*.txt templates/subjects.json
var templateFS embed.FS

// OverrideSource supplies operator-managed templates. GetActive returns
// (nil, nil) when no override exists for name.
type OverrideSource interface {
	GetActive(ctx context.Context, name string) (*types.EmailTemplate, error)
}

// Store resolves template names. An active override wins over the built-in
// template of the same name. When the override source fails the built-in is
// used and the failure is logged.
type Store struct {
	builtin   map[string]types.EmailTemplate
	overrides OverrideSource
	logger    *slog.Logger
}

// NewStore loads the embedded templates. overrides may be nil.
func NewStore(overrides OverrideSource, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	builtin, err := loadBuiltin(templateFS)
	if err != nil {
		return nil, err
	}
	return &Store{builtin: builtin, overrides: overrides, logger: logger}, nil
}

// loadBuiltin reads subjects.json and the matching .html (required) and .txt
// (optional) file for every name it lists.
func loadBuiltin(fsys fs.FS) (map[string]types.EmailTemplate, error) {
	raw, err := fs.ReadFile(fsys, "templates/subjects.json")
	if err != nil {
		return nil, fmt.Errorf("template store: failed to read subjects.json: %w", err)
	}
	var subjects map[string]string
	if err := json.Unmarshal(raw, &subjects); err != nil {
		return nil, fmt.Errorf("template store: failed to parse subjects.json: %w", err)
	}

	out := make(map[string]types.EmailTemplate, len(subjects))
	for name, subject := range subjects {
		html, err := fs.ReadFile(fsys, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("template store: failed to read %s.html: %w", name, err)
		}
		text, err := fs.ReadFile(fsys, "templates/"+name+".txt")
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("template store: failed to read %s.txt: %w", name, err)
		}
		out[name] = types.EmailTemplate{
			Name:     name,
			Subject:  subject,
			BodyHTML: string(html),
			BodyText: string(text),
		}
	}
	return out, nil
}

// Resolve returns the template registered under name, or an error matching
// ErrTemplateNotFound.
func (s *Store) Resolve(ctx context.Context, name string) (*types.EmailTemplate, error) {
	if s.overrides != nil {
		tpl, err := s.overrides.GetActive(ctx, name)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "template override lookup failed, using built-in",
				"template", name,
				"error", err,
			)
		case tpl != nil:
			return tpl, nil
		}
	}

	if tpl, ok := s.builtin[name]; ok {
		return &tpl, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, fmt.Sprintf("template %q not found", name), nil)
}

// Names lists the built-in template names in sorted order.
func (s *Store) Names() []string {
	return slices.Sorted(maps.Keys(s.builtin))
}
