package store

import "fmt"

// Snapshot is an id-free view of the whole index. Two stores holding the same
// facts produce equal snapshots regardless of row ids.
type Snapshot struct {
	Classes []ClassSnapshot  `json:"classes" yaml:"classes"`
	Globals []GlobalSnapshot `json:"globals" yaml:"globals"`
}

type ClassSnapshot struct {
	File               string           `json:"file" yaml:"file"`
	Name               string           `json:"name" yaml:"name"`
	Parent             string           `json:"parent,omitempty" yaml:"parent,omitempty"`
	ParentUnknown      bool             `json:"parentUnknown" yaml:"parentUnknown"`
	ExpectedParent     string           `json:"expectedParent,omitempty" yaml:"expectedParent,omitempty"`
	ExpectedParentFile string           `json:"expectedParentFile,omitempty" yaml:"expectedParentFile,omitempty"`
	Tags               []Tag            `json:"tags" yaml:"tags"`
	Methods            []MethodSnapshot `json:"methods" yaml:"methods"`
}

type MethodSnapshot struct {
	Name string `json:"name" yaml:"name"`
	Tags []Tag  `json:"tags" yaml:"tags"`
}

type GlobalSnapshot struct {
	File string `json:"file" yaml:"file"`
	Text string `json:"text" yaml:"text"`
	Tags []Tag  `json:"tags" yaml:"tags"`
}

// Snapshot collects every class, method, global statement and tag. A
// resolved parent is rendered as "file:name".
func (s *Store) Snapshot() (*Snapshot, error) {
	classes, err := s.queryClasses("SELECT " + classColumns + " FROM classes ORDER BY file, name")
	if err != nil {
		return nil, fmt.Errorf("snapshot classes: %w", err)
	}
	snap := &Snapshot{Classes: []ClassSnapshot{}, Globals: []GlobalSnapshot{}}
	for _, c := range classes {
		cs := ClassSnapshot{File: c.File, Name: c.Name, ParentUnknown: c.ParentUnknown}
		if c.ParentID != nil {
			parent, err := s.ClassByID(*c.ParentID)
			if err != nil {
				return nil, err
			}
			if parent != nil {
				cs.Parent = parent.File + ":" + parent.Name
			}
		}
		if c.ExpectedParent != nil {
			cs.ExpectedParent = *c.ExpectedParent
		}
		if c.ExpectedParentFile != nil {
			cs.ExpectedParentFile = *c.ExpectedParentFile
		}
		if cs.Tags, err = s.Tags(OwnerClass, c.ID); err != nil {
			return nil, err
		}
		methods, err := s.MethodsByClass(c.ID)
		if err != nil {
			return nil, err
		}
		cs.Methods = make([]MethodSnapshot, 0, len(methods))
		for _, m := range methods {
			mt, err := s.Tags(OwnerMethod, m.ID)
			if err != nil {
				return nil, err
			}
			cs.Methods = append(cs.Methods, MethodSnapshot{Name: m.Name, Tags: mt})
		}
		snap.Classes = append(snap.Classes, cs)
	}

	globals, err := s.queryGlobals("SELECT id, file, text FROM global_statements ORDER BY file, id")
	if err != nil {
		return nil, fmt.Errorf("snapshot globals: %w", err)
	}
	for _, g := range globals {
		gt, err := s.Tags(OwnerGlobalStatement, g.ID)
		if err != nil {
			return nil, err
		}
		snap.Globals = append(snap.Globals, GlobalSnapshot{File: g.File, Text: g.Text, Tags: gt})
	}
	return snap, nil
}
