// Package resolve links classes to their parents as a file is analyzed.
//
// A class whose parent cannot be found yet is stored pending, with the
// (name, file) it is waiting for. Every newly declared class promotes the
// pending classes waiting for it, whether or not its own parent is known, so
// the links a file ends up with do not depend on the order files arrive in.
package resolve

import (
	"fmt"

	"github.com/jward/lineage/internal/extract"
	"github.com/jward/lineage/internal/store"
)

// Pass resolves the classes of one file, in declaration order. A Pass must
// run inside the same transaction that invalidated the file.
type Pass struct {
	store   store.ClassStore
	file    string
	imports map[string]extract.ImportBinding
	local   map[string]int64

	promoted int
}

// NewPass starts resolution for file with its import table.
func NewPass(s store.ClassStore, file string, imports map[string]extract.ImportBinding) *Pass {
	if imports == nil {
		imports = map[string]extract.ImportBinding{}
	}
	return &Pass{
		store:   s,
		file:    file,
		imports: imports,
		local:   make(map[string]int64),
	}
}

// Promoted returns how many pending classes this pass linked to a parent.
func (p *Pass) Promoted() int {
	return p.promoted
}

// Declare creates the class record for name. It returns created=false when a
// class of the same name was already declared in this pass; the later
// declaration is dropped.
func (p *Pass) Declare(name string, parent *extract.ParentRef) (*store.Class, bool, error) {
	if _, dup := p.local[name]; dup {
		return nil, false, nil
	}

	c := &store.Class{File: p.file, Name: name}
	if err := p.attach(c, parent); err != nil {
		return nil, false, err
	}
	if _, err := p.store.InsertClass(c); err != nil {
		return nil, false, fmt.Errorf("resolve: declare %s: %w", name, err)
	}
	p.local[name] = c.ID

	if err := p.promote(c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// attach fills in c's parent link or pending expectation.
func (p *Pass) attach(c *store.Class, parent *extract.ParentRef) error {
	if parent == nil {
		return nil
	}

	if parent.Namespace != "" {
		b, ok := p.imports[parent.Namespace]
		if !ok || b.RealName != extract.NamespaceImport {
			// Not a namespace we know: nothing can satisfy it.
			pend(c, parent.Namespace+"."+parent.Name, nil)
			return nil
		}
		return p.linkOrPend(c, b.File, parent.Name)
	}

	if id, ok := p.local[parent.Name]; ok {
		c.ParentID = &id
		return nil
	}
	if b, ok := p.imports[parent.Name]; ok {
		if b.RealName == extract.NamespaceImport {
			pend(c, parent.Name, nil)
			return nil
		}
		return p.linkOrPend(c, b.File, b.RealName)
	}
	// Possibly declared later in this file.
	pend(c, parent.Name, nil)
	return nil
}

func (p *Pass) linkOrPend(c *store.Class, file, name string) error {
	target, err := p.store.ClassByFileName(file, name)
	if err != nil {
		return fmt.Errorf("resolve: lookup %s:%s: %w", file, name, err)
	}
	if target != nil {
		c.ParentID = &target.ID
		return nil
	}
	pend(c, name, &file)
	return nil
}

func pend(c *store.Class, name string, file *string) {
	c.ParentID = nil
	c.ParentUnknown = true
	c.ExpectedParent = &name
	c.ExpectedParentFile = file
}

// promote links every pending class waiting for c. Classes already linked to
// c keep their own waiters, so there is nothing further to cascade.
func (p *Pass) promote(c *store.Class) error {
	waiting, err := p.store.PendingExpecting(c.Name, c.File)
	if err != nil {
		return fmt.Errorf("resolve: promote %s:%s: %w", c.File, c.Name, err)
	}
	for _, child := range waiting {
		if child.ID == c.ID {
			continue
		}
		if err := p.store.SetParent(child.ID, c.ID); err != nil {
			return fmt.Errorf("resolve: promote %s:%s: %w", child.File, child.Name, err)
		}
		p.promoted++
	}
	return nil
}
