// Package registry declares the logical database modules of the application:
// which file each module lives in, who owns it, and how it is initialized
// and migrated.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Initializer creates a module's tables and seed rows. It runs once, when
// the module's file is created, and must be idempotent.
type Initializer func(ctx context.Context, db *sql.DB) error

// Migrator brings an existing module file up to the current schema. It runs
// on every open and returns a description of each change it applied.
type Migrator func(ctx context.Context, db *sql.DB) (applied []string, err error)

// Descriptor describes one module.
type Descriptor struct {
	ID         string
	File       string
	Owner      string
	Initialize Initializer
	Migrate    Migrator
}

// Alias is the schema name the module is attached under during federation.
func (d Descriptor) Alias() string { return Alias(d.ID) }

// Registry is an immutable set of descriptors with one distinguished main module.
type Registry struct {
	main   Descriptor
	byFile map[string]Descriptor
	byID   map[string]Descriptor
	order  []string
}

// New builds a registry. Ids, file names and aliases must all be unique.
func New(main Descriptor, others ...Descriptor) (*Registry, error) {
	r := &Registry{
		main:   main,
		byFile: make(map[string]Descriptor, len(others)+1),
		byID:   make(map[string]Descriptor, len(others)+1),
	}
	aliases := make(map[string]string, len(others)+1)
	for _, d := range append([]Descriptor{main}, others...) {
		if d.ID == "" || d.File == "" {
			return nil, fmt.Errorf("registry: descriptor %q needs both id and file", d.ID)
		}
		if strings.ContainsAny(d.File, `/\`) {
			return nil, fmt.Errorf("registry: file %q must be a bare file name", d.File)
		}
		if _, dup := r.byFile[d.File]; dup {
			return nil, fmt.Errorf("registry: file %q registered twice", d.File)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: id %q registered twice", d.ID)
		}
		alias := d.Alias()
		if prev, dup := aliases[alias]; dup {
			return nil, fmt.Errorf("registry: ids %q and %q share alias %q", prev, d.ID, alias)
		}
		aliases[alias] = d.ID
		r.byFile[d.File] = d
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// MustNew is New for static registries; it panics on an invalid set.
func MustNew(main Descriptor, others ...Descriptor) *Registry {
	r, err := New(main, others...)
	if err != nil {
		panic(err)
	}
	return r
}

// Main returns the federation target.
func (r *Registry) Main() Descriptor { return r.main }

// ByFile resolves a storage file name to its module.
func (r *Registry) ByFile(file string) (Descriptor, bool) {
	d, ok := r.byFile[file]
	return d, ok
}

// ByID resolves a module id.
func (r *Registry) ByID(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every descriptor, main first, in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Auxiliaries returns every module except main.
func (r *Registry) Auxiliaries() []Descriptor {
	all := r.All()
	return all[1:]
}

// Files returns the registered file names, sorted.
func (r *Registry) Files() []string {
	files := make([]string, 0, len(r.byFile))
	for f := range r.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Alias turns a module id into a valid SQL identifier: every character
// outside [A-Za-z0-9_] becomes '_', and a leading digit gets a '_' prefix.
func Alias(id string) string {
	var b strings.Builder
	b.Grow(len(id) + 1)
	for i, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			b.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
