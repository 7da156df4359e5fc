// Package extract parses a single TypeScript file into the class, method and
// tagged global-statement facts the index stores, plus the file's local
// import table.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/lineage/internal/tags"
)

var (
	// ErrSyntax is returned when the file does not parse cleanly.
	ErrSyntax = errors.New("extract: syntax error")
	// ErrUnsupported is returned for files the extractor has no grammar for.
	ErrUnsupported = errors.New("extract: unsupported file type")
)

const (
	// DefaultExport is the class name recorded for a default-exported class,
	// and the real name bound by a default import.
	DefaultExport = "#default"
	// NamespaceImport is the real name bound by `import * as ns`.
	NamespaceImport = "*"
	// RootAlias is the default import prefix that addresses the source root.
	RootAlias = "@/"
)

// ImportBinding is where a locally bound import name comes from.
type ImportBinding struct {
	File     string
	RealName string
}

// ParentRef is the raw extends target of a class. Namespace is set only for
// the two-part `ns.Name` form.
type ParentRef struct {
	Namespace string
	Name      string
}

// Method is a class method that has a body.
type Method struct {
	Name string
	Tags []tags.Tag
}

// Class is one top-level class declaration in source order.
type Class struct {
	Name    string
	Parent  *ParentRef
	Tags    []tags.Tag
	Methods []Method
}

// GlobalStatement is a tagged top-level statement outside any class.
type GlobalStatement struct {
	Text string
	Tags []tags.Tag
}

// Result is everything extracted from one file.
type Result struct {
	File    string
	Imports map[string]ImportBinding
	Classes []Class
	Globals []GlobalStatement
}

// Extractor turns files below a source root into Results.
type Extractor struct {
	root  string
	alias string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAlias sets the import prefix that addresses the source root. An empty
// alias disables root-relative imports.
func WithAlias(alias string) Option {
	return func(x *Extractor) {
		x.alias = alias
	}
}

// New creates an Extractor for files below root.
func New(root string, opts ...Option) *Extractor {
	x := &Extractor{root: filepath.Clean(root), alias: RootAlias}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Root returns the source root.
func (x *Extractor) Root() string {
	return x.root
}

// FileKey returns the index key for an absolute path below the root.
func (x *Extractor) FileKey(absPath string) (string, error) {
	return FileKey(x.root, absPath)
}

// Extract parses src (the contents of absPath) and returns its facts.
// A file that fails to parse yields ErrSyntax and no partial result.
func (x *Extractor) Extract(ctx context.Context, absPath string, src []byte) (*Result, error) {
	lang, ok := GrammarForFile(absPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, absPath)
	}
	key, err := x.FileKey(absPath)
	if err != nil {
		return nil, err
	}
	rel, _ := filepath.Rel(x.root, absPath)
	rel = filepath.ToSlash(rel)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("extract: parse %s: %w", key, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, key)
	}

	res := &Result{
		File:    key,
		Imports: make(map[string]ImportBinding),
		Classes: []Class{},
		Globals: []GlobalStatement{},
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "comment":
			continue
		case "import_statement":
			x.addImports(res, stmt, rel, src)
			continue
		case "class_declaration", "abstract_class_declaration":
			addClass(res, stmt, stmt, false, src)
			continue
		case "export_statement":
			if decl := exportedClass(stmt); decl != nil {
				addClass(res, stmt, decl, isDefaultExport(stmt), src)
				continue
			}
		}
		addGlobal(res, stmt, src)
	}
	return res, nil
}

func (x *Extractor) addImports(res *Result, stmt *sitter.Node, rel string, src []byte) {
	source := stmt.ChildByFieldName("source")
	if source == nil {
		return
	}
	file, ok := resolveSpecifier(rel, x.alias, unquote(source.Content(src)))
	if !ok {
		return
	}
	var clause *sitter.Node
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		if c := stmt.NamedChild(i); c.Type() == "import_clause" {
			clause = c
			break
		}
	}
	if clause == nil {
		return
	}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			res.Imports[child.Content(src)] = ImportBinding{File: file, RealName: DefaultExport}
		case "namespace_import":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					res.Imports[id.Content(src)] = ImportBinding{File: file, RealName: NamespaceImport}
				}
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				local := name
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = alias
				}
				res.Imports[local.Content(src)] = ImportBinding{File: file, RealName: name.Content(src)}
			}
		}
	}
}

// exportedClass returns the class declared by an export statement, if any.
// `export default class {}` yields an anonymous "class" node.
func exportedClass(stmt *sitter.Node) *sitter.Node {
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		switch c := stmt.NamedChild(i); c.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			return c
		}
	}
	return nil
}

func isDefaultExport(stmt *sitter.Node) bool {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		if stmt.Child(i).Type() == "default" {
			return true
		}
	}
	return false
}

// addClass records decl. outer is the node whose leading comment carries the
// class tags: the export statement for exported classes, decl otherwise.
func addClass(res *Result, outer, decl *sitter.Node, isDefault bool, src []byte) {
	var name string
	switch {
	case isDefault:
		name = DefaultExport
	case decl.ChildByFieldName("name") != nil:
		name = decl.ChildByFieldName("name").Content(src)
	default:
		return
	}

	cls := Class{
		Name:    name,
		Parent:  parentRef(decl, src),
		Tags:    tags.Collect(tags.Parse(leadingText(outer, src))),
		Methods: []Method{},
	}
	body := decl.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member.Type() != "method_definition" || member.ChildByFieldName("body") == nil {
				continue
			}
			mname := member.ChildByFieldName("name")
			if mname == nil || mname.Content(src) == "constructor" || isAccessor(member, mname) {
				continue
			}
			cls.Methods = append(cls.Methods, Method{
				Name: mname.Content(src),
				Tags: tags.Collect(tags.Parse(leadingText(member, src))),
			})
		}
	}
	res.Classes = append(res.Classes, cls)
}

// isAccessor reports whether a method_definition is a get or set accessor.
// The keyword is an unnamed token ahead of the name, so a method that is
// merely called get or set is not matched.
func isAccessor(member, name *sitter.Node) bool {
	for i := 0; i < int(member.ChildCount()); i++ {
		c := member.Child(i)
		if c.StartByte() >= name.StartByte() {
			return false
		}
		if !c.IsNamed() && (c.Type() == "get" || c.Type() == "set") {
			return true
		}
	}
	return false
}

// parentRef reads the extends clause of a class, if present.
func parentRef(decl *sitter.Node, src []byte) *ParentRef {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		heritage := decl.NamedChild(i)
		if heritage.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(heritage.NamedChildCount()); j++ {
			clause := heritage.NamedChild(j)
			if clause.Type() != "extends_clause" {
				continue
			}
			value := clause.ChildByFieldName("value")
			if value == nil && clause.NamedChildCount() > 0 {
				value = clause.NamedChild(0)
			}
			if value == nil {
				return nil
			}
			switch value.Type() {
			case "identifier", "type_identifier":
				return &ParentRef{Name: value.Content(src)}
			case "member_expression":
				obj := value.ChildByFieldName("object")
				prop := value.ChildByFieldName("property")
				if obj != nil && prop != nil && obj.Type() == "identifier" {
					return &ParentRef{Namespace: obj.Content(src), Name: prop.Content(src)}
				}
			}
			// Call expressions and deeper member chains cannot be resolved
			// statically; record the full text so the class stays pending.
			return &ParentRef{Name: value.Content(src)}
		}
	}
	return nil
}

func addGlobal(res *Result, stmt *sitter.Node, src []byte) {
	ts := tags.Collect(tags.Parse(leadingText(stmt, src)))
	if len(ts) == 0 {
		return
	}
	res.Globals = append(res.Globals, GlobalStatement{Text: stmt.Content(src), Tags: ts})
}

// leadingText returns the source between the previous significant sibling
// (or the start of the parent) and node. Comments and decorators in between
// are included.
func leadingText(node *sitter.Node, src []byte) string {
	var start uint32
	prev := node.PrevSibling()
	for prev != nil && (prev.Type() == "comment" || prev.Type() == "decorator") {
		prev = prev.PrevSibling()
	}
	switch {
	case prev != nil:
		start = prev.EndByte()
	case node.Parent() != nil:
		start = node.Parent().StartByte()
	}
	end := node.StartByte()
	if start >= end {
		return ""
	}
	return string(src[start:end])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
