package lineage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jward/lineage/internal/metrics"
	"github.com/jward/lineage/internal/store"
)

// QueryBuilder answers questions about committed index state. Each call runs
// in its own read transaction and sees one consistent snapshot.
type QueryBuilder struct {
	store   *store.Store
	keyFn   func(string) (string, error)
	metrics *metrics.Metrics
}

// TagInfo is a tag as served to consumers.
type TagInfo struct {
	Name string   `json:"name" yaml:"name"`
	Data []string `json:"data" yaml:"data"`
}

// MethodInfo is a method and its tags.
type MethodInfo struct {
	Name string    `json:"name" yaml:"name"`
	Tags []TagInfo `json:"tags" yaml:"tags"`
}

// ClassInfo describes one class. ParentChain is filled only for the classes
// of the queried file and lists ancestors nearest first.
type ClassInfo struct {
	Name        string                 `json:"name" yaml:"name"`
	Tags        []TagInfo              `json:"tags" yaml:"tags"`
	Methods     map[string]*MethodInfo `json:"methods" yaml:"methods"`
	ParentChain []*ClassInfo           `json:"parentChain,omitempty" yaml:"parentChain,omitempty"`
}

// HasTag reports whether the class carries a tag named name.
func (c *ClassInfo) HasTag(name string) bool {
	return hasTag(c.Tags, name)
}

// HasTag reports whether the method carries a tag named name.
func (m *MethodInfo) HasTag(name string) bool {
	return hasTag(m.Tags, name)
}

func hasTag(ts []TagInfo, name string) bool {
	for _, t := range ts {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Metrics returns the instruments transports record served queries on. It
// may be nil.
func (q *QueryBuilder) Metrics() *metrics.Metrics {
	return q.metrics
}

// Key returns the index key for file. Absolute paths are converted; anything
// else is taken to be a key already.
func (q *QueryBuilder) Key(file string) (string, error) {
	if filepath.IsAbs(file) && q.keyFn != nil {
		return q.keyFn(file)
	}
	return file, nil
}

// Chain returns every class defined in file, keyed by class name, each with
// its ancestor chain. A file with no classes, or one that was never indexed,
// yields an empty map.
func (q *QueryBuilder) Chain(ctx context.Context, file string) (map[string]*ClassInfo, error) {
	key, err := q.Key(file)
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	out := make(map[string]*ClassInfo)
	err = q.store.WithReadTransaction(ctx, func(snap *store.Store) error {
		classes, err := snap.ClassesByFile(key)
		if err != nil {
			return err
		}
		for _, c := range classes {
			info, err := classInfo(snap, c)
			if err != nil {
				return err
			}
			info.ParentChain, err = parentChain(snap, c)
			if err != nil {
				return err
			}
			out[c.Name] = info
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", key, err)
	}
	return out, nil
}

// parentChain follows parent links from c, nearest first, stopping at the
// first class already visited.
func parentChain(snap *store.Store, c *store.Class) ([]*ClassInfo, error) {
	chain := []*ClassInfo{}
	visited := map[int64]bool{c.ID: true}
	for next := c.ParentID; next != nil && !visited[*next]; {
		visited[*next] = true
		parent, err := snap.ClassByID(*next)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		info, err := classInfo(snap, parent)
		if err != nil {
			return nil, err
		}
		chain = append(chain, info)
		next = parent.ParentID
	}
	return chain, nil
}

func classInfo(snap *store.Store, c *store.Class) (*ClassInfo, error) {
	ct, err := snap.Tags(store.OwnerClass, c.ID)
	if err != nil {
		return nil, err
	}
	methods, err := snap.MethodsByClass(c.ID)
	if err != nil {
		return nil, err
	}
	info := &ClassInfo{
		Name:    c.Name,
		Tags:    tagInfos(ct),
		Methods: make(map[string]*MethodInfo, len(methods)),
	}
	for _, m := range methods {
		mt, err := snap.Tags(store.OwnerMethod, m.ID)
		if err != nil {
			return nil, err
		}
		info.Methods[m.Name] = &MethodInfo{Name: m.Name, Tags: tagInfos(mt)}
	}
	return info, nil
}

func tagInfos(ts []store.Tag) []TagInfo {
	out := make([]TagInfo, len(ts))
	for i, t := range ts {
		data := t.Args
		if data == nil {
			data = []string{}
		}
		out[i] = TagInfo{Name: t.Name, Data: data}
	}
	return out
}

// Files returns the keys of every indexed file.
func (q *QueryBuilder) Files(ctx context.Context) ([]string, error) {
	var keys []string
	err := q.store.WithReadTransaction(ctx, func(snap *store.Store) error {
		files, err := snap.Files()
		if err != nil {
			return err
		}
		keys = make([]string, len(files))
		for i, f := range files {
			keys[i] = f.Key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return keys, nil
}

// Pending returns every class still waiting for its parent.
func (q *QueryBuilder) Pending(ctx context.Context) ([]*Class, error) {
	var out []*Class
	err := q.store.WithReadTransaction(ctx, func(snap *store.Store) error {
		var err error
		out, err = snap.PendingClasses()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	return out, nil
}

// Snapshot returns an id-free dump of the whole index.
func (q *QueryBuilder) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snapshot *Snapshot
	err := q.store.WithReadTransaction(ctx, func(snap *store.Store) error {
		var err error
		snapshot, err = snap.Snapshot()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snapshot, nil
}
