// Package rules holds per-route filter settings loaded from a yaml file.
//
// A rules file looks like:
//
//	rules:
//	  - name: posts
//	    path: /wp/v2/posts/**
//	    methods: [GET]
//	    each_item: true
//	    default_fields: id,title
//	  - name: raw-media
//	    path: /wp/v2/media/*
//	    enabled: false
//
// Rules are matched in file order; the first match wins.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
)

// Rule configures filtering for requests whose path matches Path.
type Rule struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Path is a path.Match glob. A trailing "/**" also matches every
	// descendant path.
	Path    string   `yaml:"path" json:"path" validate:"required,startswith=/"`
	Methods []string `yaml:"methods" json:"methods,omitempty" validate:"dive,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	// Enabled defaults to true.
	Enabled       *bool  `yaml:"enabled" json:"enabled,omitempty"`
	PayloadPath   string `yaml:"payload_path" json:"payload_path,omitempty"`
	EachItem      *bool  `yaml:"each_item" json:"each_item,omitempty"`
	DefaultFields string `yaml:"default_fields" json:"default_fields,omitempty"`
}

// IsEnabled reports whether filtering is on for this rule.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// EachItemOr returns the rule's each_item setting or def when unset.
func (r Rule) EachItemOr(def bool) bool {
	if r.EachItem == nil {
		return def
	}
	return *r.EachItem
}

// AllowsMethod reports whether method is covered. An empty list means
// GET and HEAD.
func (r Rule) AllowsMethod(method string) bool {
	method = strings.ToUpper(strings.TrimSpace(method))
	if len(r.Methods) == 0 {
		return method == "GET" || method == "HEAD"
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// MatchesPath reports whether p matches the rule's glob.
func (r Rule) MatchesPath(p string) bool {
	pattern := r.Path
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if prefix == "" {
			return true
		}
		return matchPrefix(prefix, p)
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}

// matchPrefix matches the first len(segments(prefix)) segments of p
// against the glob prefix.
func matchPrefix(prefix, p string) bool {
	want := strings.Count(prefix, "/")
	segs := strings.SplitAfterN(p, "/", want+2)
	if len(segs) < want+1 {
		return false
	}
	head := strings.TrimSuffix(strings.Join(segs[:want+1], ""), "/")
	ok, err := path.Match(prefix, head)
	return err == nil && ok
}

type file struct {
	Rules []Rule `yaml:"rules" validate:"unique=Name,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes and validates a rules document.
func Parse(b []byte) ([]Rule, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	for i := range f.Rules {
		r := &f.Rules[i]
		r.Name = strings.TrimSpace(r.Name)
		r.Path = strings.TrimSpace(r.Path)
		r.DefaultFields = strings.TrimSpace(r.DefaultFields)
		for j, m := range r.Methods {
			r.Methods[j] = strings.ToUpper(strings.TrimSpace(m))
		}
	}
	if err := validate.Struct(f); err != nil {
		return nil, formatValidationError(err)
	}
	for i, r := range f.Rules {
		if _, err := path.Match(strings.TrimSuffix(r.Path, "/**"), ""); err != nil {
			return nil, fmt.Errorf("rules[%d].path: %w", i, err)
		}
		if err := jsonutil.ValidatePath(r.PayloadPath); err != nil {
			return nil, fmt.Errorf("rules[%d].payload_path: %w", i, err)
		}
	}
	return f.Rules, nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate rules: %w", err)
	}
	fe := verrs[0]
	// Namespace is "file.rules[0].path"; drop the root type name.
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", ns)
	case "unique":
		return fmt.Errorf("%s: rule names must be unique", ns)
	case "startswith":
		return fmt.Errorf("%s must start with %q", ns, fe.Param())
	case "oneof":
		return fmt.Errorf("%s: unsupported method %q", ns, fe.Value())
	default:
		return fmt.Errorf("%s: failed %q validation", ns, fe.Tag())
	}
}

// Registry is a concurrency-safe, reloadable rule list.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: append([]Rule(nil), rules...)}
}

// LoadFile reads a rules file into a new registry.
func LoadFile(p string) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.ReloadFromFile(p); err != nil {
		return nil, err
	}
	return reg, nil
}

// ReloadFromFile replaces the rules with the contents of p. The current
// rules are kept when the file is unreadable or invalid.
func (r *Registry) ReloadFromFile(p string) error {
	// #nosec G304 -- path comes from trusted config.
	b, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	rules, err := Parse(b)
	if err != nil {
		return fmt.Errorf("rules file %s: %w", p, err)
	}
	r.Replace(rules)
	return nil
}

func (r *Registry) Replace(rules []Rule) {
	cp := append([]Rule(nil), rules...)
	r.mu.Lock()
	r.rules = cp
	r.mu.Unlock()
}

// Match returns the first rule covering method and path.
func (r *Registry) Match(method, p string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.AllowsMethod(method) && rule.MatchesPath(p) {
			return rule, true
		}
	}
	return Rule{}, false
}

// List returns a copy of the loaded rules.
func (r *Registry) List() []Rule {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
