package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Agent template names.
const (
	TemplateBreakdown          = "plan-breakdown-analyzer"
	TemplateTaskAnalyzer       = "task-analyzer-executor"
	TemplateValidator          = "task-validator"
	TemplateStatusUpdater      = "task-status-updater"
	TemplatePlanAnalyzer       = "plan-analyzer"
	TemplateSchemaDesigner     = "database-schema-designer"
	TemplateStructureGenerator = "project-structure-generator"
)

// ErrTemplateNotFound is returned when an agent template file does not exist.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateMeta is the YAML front matter of an agent template.
type TemplateMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
	Tools       string `yaml:"tools"`
	Color       string `yaml:"color"`
}

// Template is a loaded agent template.
type Template struct {
	Name string
	Path string
	Meta TemplateMeta
	// Body is the instruction text with the front matter removed.
	Body string
}

// Templates reads agent templates from a directory of <name>.md files.
type Templates struct {
	dir string
}

// NewTemplates creates a template loader rooted at dir.
func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir}
}

// Dir returns the template directory.
func (t *Templates) Dir() string {
	return t.dir
}

func (t *Templates) path(name string) string {
	return filepath.Join(t.dir, name+".md")
}

// Exists reports whether the named template is present.
func (t *Templates) Exists(name string) bool {
	info, err := os.Stat(t.path(name))
	return err == nil && !info.IsDir()
}

// Missing returns the names that have no template file.
func (t *Templates) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !t.Exists(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// List returns the names of every template, sorted.
func (t *Templates) List() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses the named template.
func (t *Templates) Load(name string) (*Template, error) {
	path := t.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}

	tmpl := &Template{Name: name, Path: path, Body: string(data)}
	front, body, ok := splitFrontMatter(string(data))
	if ok {
		if err := yaml.Unmarshal([]byte(front), &tmpl.Meta); err != nil {
			return nil, fmt.Errorf("parse front matter of %s: %w", name, err)
		}
		tmpl.Body = body
	}
	if tmpl.Meta.Name == "" {
		tmpl.Meta.Name = name
	}
	return tmpl, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// rest of the document.
func splitFrontMatter(content string) (front, body string, ok bool) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, "---") {
		return "", content, false
	}
	rest := strings.TrimLeft(content[3:], " \t")
	if !strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "\r\n") {
		return "", content, false
	}
	rest = strings.TrimLeft(rest, "\r\n")

	lines := strings.SplitAfter(rest, "\n")
	var fm strings.Builder
	for i, line := range lines {
		if strings.TrimRight(line, "\r\n") == "---" {
			return fm.String(), strings.TrimLeft(strings.Join(lines[i+1:], ""), "\r\n"), true
		}
		fm.WriteString(line)
	}
	return "", content, false
}
