package tracking

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
)

// WildcardEvent matches every event name. A wildcard rule supplies
// defaults that an exact-match rule extends.
const WildcardEvent = "*"

// DefaultGranularities is used when a rule (or the absence of any rule)
// does not pin granularities explicitly. Week and month buckets are
// opt-in: they hold large unique-actor sets in memory between flushes.
var DefaultGranularities = []granularity.Granularity{
	granularity.Minute,
	granularity.Hour,
	granularity.Day,
}

// Rule declares how events of one name are accumulated: which property
// keys get breakdown counting, which numeric field (if any) is summed
// into the bucket's value, and which granularities to bucket by.
// Rules are loaded at startup from YAML files and fingerprinted for
// staleness detection. No dynamic evaluation — rules match on SourceEvent only.
type Rule struct {
	Name          string                    `yaml:"name"`
	SourceEvent   string                    `yaml:"source_event"`
	Breakdowns    []string                  `yaml:"breakdowns"`
	ValueField    string                    `yaml:"value_field"`
	Granularities []granularity.Granularity // parsed from the raw YAML strings
	Fingerprint   string                    // SHA-256 of the raw YAML file; computed at load time
}

// rawRule is the on-disk YAML shape.
type rawRule struct {
	Name          string   `yaml:"name"`
	SourceEvent   string   `yaml:"source_event"`
	Breakdowns    []string `yaml:"breakdowns"`
	ValueField    string   `yaml:"value_field"`
	Granularities []string `yaml:"granularities"`
}

// Repository defines the interface for loading tracking rules.
type Repository interface {
	// Get returns the rule with the given name, or an error if not found.
	Get(ctx context.Context, name string) (*Rule, error)

	// ForEvent resolves the effective rule for an event name: the
	// exact-match rule when one exists, otherwise the wildcard rule,
	// otherwise a default rule with no breakdowns and no value field.
	ForEvent(eventName string) Rule

	// GetRules returns all loaded rules as a slice.
	GetRules() []Rule
}

// FileSystemRepository loads tracking rules from *.yaml files in a directory.
// Each file contains exactly one rule at the top level. Rules are loaded once
// at startup and cached in memory — no hot reload.
type FileSystemRepository struct {
	dir     string
	rules   map[string]Rule // keyed by Name
	byEvent map[string]Rule // keyed by SourceEvent; one rule per event
}

// NewFileSystemRepository creates a new repository and eagerly loads all rules
// from dir. Returns an error if any rule file is malformed or invalid.
func NewFileSystemRepository(dir string) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		dir:     dir,
		rules:   make(map[string]Rule),
		byEvent: make(map[string]Rule),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no rules directory — valid (zero rules configured)
	}
	if err != nil {
		return fmt.Errorf("tracking rule dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("tracking rule path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading tracking rule dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading rule file %s: %w", path, err)
		}

		var raw rawRule
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing rule file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // skip empty / comment-only files
		}

		if raw.SourceEvent == "" {
			return fmt.Errorf("rule %q: source_event must not be empty", raw.Name)
		}

		grans := DefaultGranularities
		if len(raw.Granularities) > 0 {
			grans = make([]granularity.Granularity, 0, len(raw.Granularities))
			for _, s := range raw.Granularities {
				g, err := granularity.Parse(s)
				if err != nil {
					return fmt.Errorf("rule %q: %w", raw.Name, err)
				}
				grans = append(grans, g)
			}
		}

		fingerprint := fmt.Sprintf("%x", sha256.Sum256(data))

		if _, exists := r.rules[raw.Name]; exists {
			return fmt.Errorf("rule %q: duplicate rule name (check multiple YAML files)", raw.Name)
		}
		if _, exists := r.byEvent[raw.SourceEvent]; exists {
			return fmt.Errorf("rule %q: duplicate rule for source_event %q", raw.Name, raw.SourceEvent)
		}

		rule := Rule{
			Name:          raw.Name,
			SourceEvent:   raw.SourceEvent,
			Breakdowns:    raw.Breakdowns,
			ValueField:    raw.ValueField,
			Granularities: grans,
			Fingerprint:   fingerprint,
		}
		r.rules[raw.Name] = rule
		r.byEvent[raw.SourceEvent] = rule
	}
	return nil
}

// Get returns the rule with the given name, or an error if not found.
func (r *FileSystemRepository) Get(_ context.Context, name string) (*Rule, error) {
	rule, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("tracking rule %q not found", name)
	}
	return &rule, nil
}

// ForEvent resolves the effective rule for an event name.
func (r *FileSystemRepository) ForEvent(eventName string) Rule {
	if rule, ok := r.byEvent[eventName]; ok {
		return rule
	}
	if rule, ok := r.byEvent[WildcardEvent]; ok {
		return rule
	}
	return Rule{
		Name:          "default",
		SourceEvent:   eventName,
		Granularities: DefaultGranularities,
	}
}

// GetRules returns all loaded rules as a slice.
func (r *FileSystemRepository) GetRules() []Rule {
	rules := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	return rules
}
