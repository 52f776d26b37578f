// Package render turns named templates into pages and email bodies.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/gofiber/fiber/v2"
)

//go:embed templates
var embedded embed.FS

// Renderer renders templates with a context mapping. It satisfies fiber.Views.
type Renderer struct {
	set *pongo2.TemplateSet
}

// New builds a renderer over the built-in templates.
func New() (*Renderer, error) {
	root, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return NewFromFS(root), nil
}

// NewFromFS builds a renderer over templates in fsys.
func NewFromFS(fsys fs.FS) *Renderer {
	return &Renderer{set: pongo2.NewSet("account-service", &fsLoader{fsys: fsys})}
}

// Load parses nothing up front; templates are compiled and cached on first use.
func (r *Renderer) Load() error {
	return nil
}

// Render executes the named template into w. Layouts are expressed with
// {% extends %} inside templates, so the layout arguments are ignored.
func (r *Renderer) Render(w io.Writer, name string, binding interface{}, _ ...string) error {
	tpl, err := r.set.FromCache(name)
	if err != nil {
		return fmt.Errorf("load template %s: %w", name, err)
	}
	ctx, err := toContext(binding)
	if err != nil {
		return err
	}
	if err := tpl.ExecuteWriter(ctx, w); err != nil {
		return fmt.Errorf("render template %s: %w", name, err)
	}
	return nil
}

// RenderString renders the named template into a string.
func (r *Renderer) RenderString(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toContext(binding interface{}) (pongo2.Context, error) {
	switch b := binding.(type) {
	case nil:
		return pongo2.Context{}, nil
	case pongo2.Context:
		return b, nil
	case fiber.Map:
		return pongo2.Context(b), nil
	case map[string]interface{}:
		return pongo2.Context(b), nil
	default:
		return nil, fmt.Errorf("render: unsupported binding %T", binding)
	}
}

type fsLoader struct {
	fsys fs.FS
}

func (l *fsLoader) Abs(base, name string) string {
	name = strings.TrimPrefix(name, "/")
	if base == "" || strings.Contains(name, "/") {
		return path.Clean(name)
	}
	return path.Join(path.Dir(base), name)
}

func (l *fsLoader) Get(name string) (io.Reader, error) {
	raw, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}
