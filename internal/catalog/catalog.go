// Package catalog loads and serves the specialized response contexts the
// chat engine selects between. The catalog lives in a YAML mapping file;
// readers always see an immutable snapshot and reloads swap the snapshot
// atomically.
package catalog

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the built-in context used when selection fails or nothing
// matches. It is always present, even when the catalog file is unreadable.
const DefaultKey = "general_medical"

// metadataPrefix marks catalog entries that carry file metadata (version,
// last-updated) rather than a context definition.
const metadataPrefix = "_"

// Definition is one selectable response context.
type Definition struct {
	Key          string
	Name         string
	Description  string
	Keywords     []string
	SystemPrompt string
}

// Snapshot is an immutable view of the catalog. Keys preserves declaration
// order from the file; the fallback scorer depends on that order for
// deterministic tie-breaks.
type Snapshot struct {
	defs map[string]Definition
	keys []string
}

// Get returns the definition for key.
func (s *Snapshot) Get(key string) (Definition, bool) {
	d, ok := s.defs[key]
	return d, ok
}

// Has reports whether key names a context in this snapshot.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.defs[key]
	return ok
}

// Keys returns the context keys in declaration order.
func (s *Snapshot) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of non-metadata contexts.
func (s *Snapshot) Len() int { return len(s.keys) }

// Default returns the definition selection falls back to.
func (s *Snapshot) Default() Definition {
	if d, ok := s.defs[DefaultKey]; ok {
		return d
	}
	return builtinDefault()
}

// Validation is the result of checking every entry for required fields.
type Validation struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
	Count  int      `json:"contextCount"`
}

// Validate checks that every context has a name, description and system
// prompt. Keyword lists are advisory and not required. The result depends
// only on the snapshot, so repeated calls between reloads are identical.
func Validate(s *Snapshot) Validation {
	v := Validation{Valid: true, Errors: []string{}, Count: s.Len()}
	for _, key := range s.keys {
		d := s.defs[key]
		if strings.TrimSpace(d.Name) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("context %q: missing name", key))
		}
		if strings.TrimSpace(d.Description) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("context %q: missing description", key))
		}
		if strings.TrimSpace(d.SystemPrompt) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("context %q: missing prompt", key))
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// Store owns the current catalog snapshot for a file path.
type Store struct {
	path string
	cur  atomic.Pointer[Snapshot]
}

// NewStore creates a Store for the given catalog file. The file is not read
// until the first Load.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the current snapshot, reading the file on first use. A read
// or parse failure never propagates: the engine falls back to a single
// built-in general-medical context instead.
func (st *Store) Load() *Snapshot {
	if snap := st.cur.Load(); snap != nil {
		return snap
	}
	snap, err := parseFile(st.path)
	if err != nil {
		return fallbackSnapshot()
	}
	st.cur.Store(snap)
	return snap
}

// Reload re-reads the catalog file and atomically swaps the snapshot.
// On failure the previous snapshot stays in place and Reload returns false.
func (st *Store) Reload() bool {
	snap, err := parseFile(st.path)
	if err != nil {
		return false
	}
	st.cur.Store(snap)
	return true
}

func parseFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return parse(data)
}

// parse decodes the YAML mapping via yaml.Node so the declaration order of
// entries survives into the snapshot.
func parse(data []byte) (*Snapshot, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog: top level must be a mapping of key to context")
	}
	root := doc.Content[0]

	snap := &Snapshot{defs: map[string]Definition{}}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if strings.HasPrefix(key, metadataPrefix) {
			continue
		}
		var raw struct {
			Name        string   `yaml:"name"`
			Description string   `yaml:"description"`
			Keywords    []string `yaml:"keywords"`
			Prompt      string   `yaml:"prompt"`
		}
		if err := root.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("catalog: decode context %q: %w", key, err)
		}
		if _, dup := snap.defs[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate context %q", key)
		}
		snap.defs[key] = Definition{
			Key:          key,
			Name:         raw.Name,
			Description:  raw.Description,
			Keywords:     raw.Keywords,
			SystemPrompt: raw.Prompt,
		}
		snap.keys = append(snap.keys, key)
	}
	if len(snap.keys) == 0 {
		return nil, fmt.Errorf("catalog: no contexts defined")
	}
	return snap, nil
}

func builtinDefault() Definition {
	return Definition{
		Key:         DefaultKey,
		Name:        "General Medical Support",
		Description: "General radiotherapy and treatment questions",
		SystemPrompt: "You are an experienced and compassionate radiotherapy counseling assistant. " +
			"Respond warmly and conversationally, offer practical guidance for patients undergoing " +
			"radiotherapy, suggest seeking medical help when symptoms sound concerning, and avoid " +
			"diagnosis. Always include a soft disclaimer that you are not a substitute for a doctor.",
	}
}

func fallbackSnapshot() *Snapshot {
	d := builtinDefault()
	return &Snapshot{
		defs: map[string]Definition{d.Key: d},
		keys: []string{d.Key},
	}
}
