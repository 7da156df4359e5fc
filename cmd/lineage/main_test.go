package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/verify"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "src", "roles")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	// TempDir has no .git directory anywhere in its ancestry
	// (unless /tmp itself is a repo, which would be unusual).
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"json", "text", "yaml"} {
		assert.NoError(t, validateFormat(f))
	}
	err := validateFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json, text, yaml")
}

// =============================================================================
// Text formatters
// =============================================================================

func sampleChain() map[string]*lineage.ClassInfo {
	base := &lineage.ClassInfo{
		Name: "CreepRole",
		Tags: []lineage.TagInfo{},
		Methods: map[string]*lineage.MethodInfo{
			"run": {Name: "run", Tags: []lineage.TagInfo{{Name: "emptySuper", Data: []string{}}}},
		},
	}
	return map[string]*lineage.ClassInfo{
		"Harvester": {
			Name: "Harvester",
			Tags: []lineage.TagInfo{{Name: "role", Data: []string{`"harvester"`}}},
			Methods: map[string]*lineage.MethodInfo{
				"run":     {Name: "run", Tags: []lineage.TagInfo{}},
				"cleanup": {Name: "cleanup", Tags: []lineage.TagInfo{}},
			},
			ParentChain: []*lineage.ClassInfo{base},
		},
		"Idle": {Name: "Idle", Tags: []lineage.TagInfo{}, Methods: map[string]*lineage.MethodInfo{}},
	}
}

func TestFormatChainText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	formatChainText(&buf, sampleChain())
	assert.Equal(t, `Harvester <- CreepRole
  #role "harvester"
  cleanup()
  run()

Idle
`, buf.String())
}

func TestFormatPendingText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	formatPendingText(&buf, []CLIPending{
		{File: "roles/miner.ts", Name: "#default", ExpectedParent: "Harvester", ExpectedFile: "roles/harvester.ts"},
		{File: "a.ts", Name: "A", ExpectedParent: "Missing"},
	})
	assert.Equal(t, `FILE            CLASS     WAITING FOR
roles/miner.ts  #default  Harvester (roles/harvester.ts)
a.ts            A         Missing
`, buf.String())
}

func TestOutputResultText_Diagnostics(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := outputResultText(&buf, CLIResult{Command: "check", Results: []verify.Diagnostic{{
		File: "/src/miner.ts", Line: 5, Column: 5, Rule: verify.RuleCallSuper,
		Message: "overriding method must call super.cleanup()",
	}}})
	require.NoError(t, err)
	assert.Equal(t, "/src/miner.ts:5:5: overriding method must call super.cleanup() (callSuper)\n", buf.String())

	err = outputResultText(&buf, CLIResult{Results: 42})
	assert.Error(t, err)
}

// =============================================================================
// Structured output (mutates flagFormat; not parallel)
// =============================================================================

func withFormat(t *testing.T, f string) {
	t.Helper()
	old := flagFormat
	flagFormat = f
	t.Cleanup(func() { flagFormat = old })
}

func TestOutputResult_JSON(t *testing.T) {
	withFormat(t, "json")
	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, CLIResult{Command: "query", Results: sampleChain()}))

	var got struct {
		Command string                        `json:"command"`
		Results map[string]*lineage.ClassInfo `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "query", got.Command)
	require.Len(t, got.Results["Harvester"].ParentChain, 1)
	assert.Equal(t, "CreepRole", got.Results["Harvester"].ParentChain[0].Name)
	assert.Nil(t, got.Results["Idle"].ParentChain)
}

func TestOutputResult_YAML(t *testing.T) {
	withFormat(t, "yaml")
	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, CLIResult{Command: "pending", Results: []CLIPending{
		{File: "a.ts", Name: "A", ExpectedParent: "B"},
	}}))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "pending", got["command"])
	results, ok := got["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"file": "a.ts", "name": "A", "expectedParent": "B"}, results[0])
}

func TestOutputError(t *testing.T) {
	withFormat(t, "json")
	defer func() { errorHandled = false }()

	var out, errOut bytes.Buffer
	err := outputError(&out, &errOut, "query", errors.New("database not found"))
	require.Error(t, err)
	assert.True(t, errorHandled)
	assert.JSONEq(t, `{"command":"query","results":null,"error":"database not found"}`, out.String())
	assert.Empty(t, errOut.String())

	flagFormat = "text"
	out.Reset()
	_ = outputError(&out, &errOut, "query", errors.New("boom"))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error: boom\n", errOut.String())
}
