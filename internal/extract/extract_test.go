package extract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lineage/internal/tags"
)

const testRoot = "/repo/src"

func extractSource(t *testing.T, rel, src string) *Result {
	t.Helper()
	x := New(testRoot)
	res, err := x.Extract(context.Background(), filepath.Join(testRoot, rel), []byte(src))
	require.NoError(t, err)
	return res
}

func classByName(res *Result, name string) *Class {
	for i := range res.Classes {
		if res.Classes[i].Name == name {
			return &res.Classes[i]
		}
	}
	return nil
}

// =============================================================================
// File keys
// =============================================================================

func TestFileKey(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/repo/src/a.ts":           "a",
		"/repo/src/room/b.ts":      "room/b",
		"/repo/src/room/index.ts":  "room",
		"/repo/src/room/view.tsx":  "room/view",
		"/repo/src/index.ts":       "",
		"/repo/src/room/index2.ts": "room/index2",
	}
	for in, want := range cases {
		got, err := FileKey(testRoot, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestFileKey_OutsideRoot(t *testing.T) {
	t.Parallel()
	_, err := FileKey(testRoot, "/elsewhere/a.ts")
	require.Error(t, err)
}

func TestResolveSpecifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, spec string
		want       string
		ok         bool
	}{
		{"room/b.ts", "./base", "room/base", true},
		{"room/b.ts", "../core/thing", "core/thing", true},
		{"room/b.ts", "../core", "core", true},
		{"room/b.ts", "./sub/index", "room/sub", true},
		{"room/b.ts", "./base.js", "room/base", true},
		{"room/b.ts", "@/core/thing", "core/thing", true},
		{"room/b.ts", "lodash", "", false},
		{"b.ts", "../../outside", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveSpecifier(tt.from, RootAlias, tt.spec)
		assert.Equal(t, tt.ok, ok, tt.spec)
		assert.Equal(t, tt.want, got, tt.spec)
	}
}

// =============================================================================
// Imports
// =============================================================================

func TestExtract_ImportBindings(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "room/child.ts", `
import Base from './base';
import { Named, Other as Renamed } from '../core/named';
import * as ns from '@/lib/ns';
import { external } from 'lodash';
`)
	assert.Equal(t, "room/child", res.File)
	assert.Equal(t, ImportBinding{File: "room/base", RealName: DefaultExport}, res.Imports["Base"])
	assert.Equal(t, ImportBinding{File: "core/named", RealName: "Named"}, res.Imports["Named"])
	assert.Equal(t, ImportBinding{File: "core/named", RealName: "Other"}, res.Imports["Renamed"])
	assert.Equal(t, ImportBinding{File: "lib/ns", RealName: NamespaceImport}, res.Imports["ns"])
	assert.NotContains(t, res.Imports, "external")
	assert.NotContains(t, res.Imports, "Other")
}

// =============================================================================
// Classes
// =============================================================================

func TestExtract_ClassesAndParents(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", `
import * as ns from './ns';

class A {}
export class B extends A {}
export abstract class C extends ns.Base {}
export default class D extends Base<number> {}
`)
	require.Len(t, res.Classes, 4)

	a := classByName(res, "A")
	require.NotNil(t, a)
	assert.Nil(t, a.Parent)

	b := classByName(res, "B")
	require.NotNil(t, b)
	assert.Equal(t, &ParentRef{Name: "A"}, b.Parent)

	c := classByName(res, "C")
	require.NotNil(t, c)
	assert.Equal(t, &ParentRef{Namespace: "ns", Name: "Base"}, c.Parent)

	d := classByName(res, DefaultExport)
	require.NotNil(t, d, "default-exported class is named by the sentinel")
	assert.Equal(t, &ParentRef{Name: "Base"}, d.Parent)
}

func TestExtract_AnonymousDefaultClass(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", "export default class extends Base {}\n")
	require.Len(t, res.Classes, 1)
	assert.Equal(t, DefaultExport, res.Classes[0].Name)
	assert.Equal(t, &ParentRef{Name: "Base"}, res.Classes[0].Parent)
}

func TestExtract_TagsAndMethods(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", `
const unrelated = 1;

/**
 * A creep role.
 * #role harvester
 */
export class Harvester extends Base {
    // #emptySuper
    run(): void {}

    /**
     * #limit 3 "high value"
     */
    plan() {
        return 1;
    }

    abstractish(): void;

    field = 3;
}
`)
	require.Len(t, res.Classes, 1)
	h := res.Classes[0]
	assert.Equal(t, "Harvester", h.Name)
	require.Len(t, h.Tags, 1)
	assert.Equal(t, tags.Tag{Name: "role", Args: []string{"harvester"}}, h.Tags[0])

	require.Len(t, h.Methods, 2, "only methods with a body are recorded")
	assert.Equal(t, "run", h.Methods[0].Name)
	assert.True(t, tags.Has(h.Methods[0].Tags, tags.EmptySuper))
	assert.Equal(t, "plan", h.Methods[1].Name)
	require.Len(t, h.Methods[1].Tags, 1)
	assert.Equal(t, []string{"3", `"high value"`}, h.Methods[1].Tags[0].Args)
}

func TestExtract_SkipsConstructorsAndAccessors(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", `
export class Store {
    private n = 0;

    constructor() {}

    get size(): number { return this.n; }

    set size(v: number) { this.n = v; }

    get(): number { return this.n; }

    run(): void {}
}
`)
	require.Len(t, res.Classes, 1)
	var names []string
	for _, m := range res.Classes[0].Methods {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"get", "run"}, names)
}

func TestExtract_DuplicateClassesAreReported(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", "class A {}\nclass A { m() {} }\n")
	require.Len(t, res.Classes, 2)
	assert.Empty(t, res.Classes[0].Methods)
}

// =============================================================================
// Global statements
// =============================================================================

func TestExtract_TaggedGlobals(t *testing.T) {
	t.Parallel()
	res := extractSource(t, "a.ts", `
class Manager {}

// #exportGlobal
exportGlobal('manager', Manager);

exportGlobal('untagged', Manager);
`)
	require.Len(t, res.Globals, 1)
	assert.Equal(t, "exportGlobal('manager', Manager);", res.Globals[0].Text)
	assert.Equal(t, tags.ExportGlobal, res.Globals[0].Tags[0].Name)
}

// =============================================================================
// Failures
// =============================================================================

func TestExtract_SyntaxError(t *testing.T) {
	t.Parallel()
	x := New(testRoot)
	_, err := x.Extract(context.Background(), filepath.Join(testRoot, "bad.ts"), []byte("class { extends ((("))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestExtract_Unsupported(t *testing.T) {
	t.Parallel()
	x := New(testRoot)
	_, err := x.Extract(context.Background(), filepath.Join(testRoot, "types.d.ts"), []byte("declare const x: number;"))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = x.Extract(context.Background(), filepath.Join(testRoot, "style.css"), nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
