// Package verify enforces that an overriding method calls through to the
// ancestor method it overrides, unless that ancestor method is tagged
// #emptySuper.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/client"
	"github.com/jward/lineage/internal/extract"
	"github.com/jward/lineage/internal/suggest"
	"github.com/jward/lineage/internal/tags"
)

// Rule names reported in diagnostics.
const (
	RuleCallSuper       = "callSuper"
	RuleClassNotInCache = "classNotInCache"
	RuleServerClosed    = "serverClosed"
)

var messages = map[string]string{
	RuleCallSuper:       "overriding method must call super.%s()",
	RuleClassNotInCache: "class %s is not in the index; rebuild the index or restart the server",
	RuleServerClosed:    "the lineage server is not running",
}

// Result says whether an override of a method must call through.
type Result struct {
	Required bool
	// From is the nearest ancestor declaring the method.
	From   *lineage.ClassInfo
	Exempt bool
}

// Requirement inspects chain (nearest ancestor first) for method.
func Requirement(chain []*lineage.ClassInfo, method string) Result {
	for _, ancestor := range chain {
		m, ok := ancestor.Methods[method]
		if !ok {
			continue
		}
		if m.HasTag(tags.EmptySuper) {
			return Result{From: ancestor, Exempt: true}
		}
		return Result{Required: true, From: ancestor}
	}
	return Result{}
}

// ChainSource supplies the class map for a file. Both *lineage.QueryBuilder
// and *client.Client satisfy it.
type ChainSource interface {
	Chain(ctx context.Context, file string) (map[string]*lineage.ClassInfo, error)
}

// Diagnostic is one rule violation. Line and Column are 1-based.
type Diagnostic struct {
	File       string `json:"file" yaml:"file"`
	Line       int    `json:"line" yaml:"line"`
	Column     int    `json:"column" yaml:"column"`
	Rule       string `json:"rule" yaml:"rule"`
	Class      string `json:"class" yaml:"class"`
	Method     string `json:"method,omitempty" yaml:"method,omitempty"`
	Ancestor   string `json:"ancestor,omitempty" yaml:"ancestor,omitempty"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Message    string `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s (%s)", d.File, d.Line, d.Column, d.Message, d.Rule)
}

// Checker runs the rule over source files.
type Checker struct {
	src ChainSource
}

// NewChecker creates a Checker that looks classes up in src.
func NewChecker(src ChainSource) *Checker {
	return &Checker{src: src}
}

type method struct {
	name       string
	node       *sitter.Node
	callsSuper bool
}

type class struct {
	name    string
	node    *sitter.Node
	methods []method
}

// CheckFile checks the top-level classes of path, whose contents are src.
// The class map is fetched only if some method does not call through.
func (c *Checker) CheckFile(ctx context.Context, path string, src []byte) ([]Diagnostic, error) {
	lang, ok := extract.GrammarForFile(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupported, path)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("verify: parse %s: %w", path, err)
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s", extract.ErrSyntax, path)
	}

	classes := collectClasses(root, src)

	var (
		cache   map[string]*lineage.ClassInfo
		fetched bool
		closed  bool
	)
	lookup := func() error {
		if fetched {
			return nil
		}
		fetched = true
		cache, err = c.src.Chain(ctx, path)
		if errors.Is(err, client.ErrUnavailable) {
			closed = true
			return nil
		}
		return err
	}

	diags := []Diagnostic{}
	for _, cls := range classes {
		for _, m := range cls.methods {
			if m.callsSuper {
				continue
			}
			if err := lookup(); err != nil {
				return nil, fmt.Errorf("verify: %s: %w", path, err)
			}
			if closed {
				diags = append(diags, diagnostic(path, cls.node, RuleServerClosed, cls.name, m.name))
				continue
			}
			info, ok := cache[cls.name]
			if !ok {
				d := diagnostic(path, cls.node, RuleClassNotInCache, cls.name, m.name)
				if s, ok := suggest.Closest(cls.name, keys(cache)); ok {
					d.Suggestion = s
					d.Message += fmt.Sprintf(" (did you mean %s?)", s)
				}
				diags = append(diags, d)
				continue
			}
			req := Requirement(info.ParentChain, m.name)
			if !req.Required {
				continue
			}
			d := diagnostic(path, m.node, RuleCallSuper, cls.name, m.name)
			d.Ancestor = req.From.Name
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func diagnostic(path string, node *sitter.Node, rule, className, methodName string) Diagnostic {
	pos := node.StartPoint()
	d := Diagnostic{
		File:   path,
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
		Rule:   rule,
		Class:  className,
		Method: methodName,
	}
	switch rule {
	case RuleCallSuper:
		d.Message = fmt.Sprintf(messages[rule], methodName)
	case RuleClassNotInCache:
		d.Message = fmt.Sprintf(messages[rule], className)
	default:
		d.Message = messages[rule]
	}
	return d
}

func keys(m map[string]*lineage.ClassInfo) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// collectClasses finds the top-level classes, named the way the index names
// them, with every method that has a body.
func collectClasses(root *sitter.Node, src []byte) []class {
	var out []class
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		var decl *sitter.Node
		isDefault := false
		switch stmt.Type() {
		case "class_declaration", "abstract_class_declaration":
			decl = stmt
		case "export_statement":
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				switch c := stmt.NamedChild(j); c.Type() {
				case "class_declaration", "abstract_class_declaration", "class":
					decl = c
				}
			}
			for j := 0; j < int(stmt.ChildCount()); j++ {
				if stmt.Child(j).Type() == "default" {
					isDefault = true
				}
			}
		}
		if decl == nil {
			continue
		}

		name := extract.DefaultExport
		if !isDefault {
			n := decl.ChildByFieldName("name")
			if n == nil {
				continue
			}
			name = n.Content(src)
		}
		cls := class{name: name, node: decl}
		if body := decl.ChildByFieldName("body"); body != nil {
			for j := 0; j < int(body.NamedChildCount()); j++ {
				member := body.NamedChild(j)
				if member.Type() != "method_definition" {
					continue
				}
				mname := member.ChildByFieldName("name")
				mbody := member.ChildByFieldName("body")
				if mname == nil || mbody == nil || mname.Type() != "property_identifier" {
					continue
				}
				name := mname.Content(src)
				// Constructors call through with super(), which TypeScript
				// already enforces.
				if name == "constructor" {
					continue
				}
				cls.methods = append(cls.methods, method{
					name:       name,
					node:       member,
					callsSuper: callsSuper(mbody, name, src),
				})
			}
		}
		out = append(out, cls)
	}
	return out
}

// callsSuper reports whether body contains a `super.<name>` member access.
func callsSuper(body *sitter.Node, name string, src []byte) bool {
	if body.Type() == "member_expression" {
		obj := body.ChildByFieldName("object")
		prop := body.ChildByFieldName("property")
		if obj != nil && prop != nil && obj.Type() == "super" && prop.Content(src) == name {
			return true
		}
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if callsSuper(body.NamedChild(i), name, src) {
			return true
		}
	}
	return false
}
