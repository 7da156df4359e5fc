package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// insertTestClass inserts a resolved class with the given parent.
func insertTestClass(t *testing.T, s *Store, file, name string, parentID *int64) *Class {
	t.Helper()
	c := &Class{File: file, Name: name, ParentID: parentID}
	id, err := s.InsertClass(c)
	require.NoError(t, err)
	require.Positive(t, id)
	return c
}

func insertPendingClass(t *testing.T, s *Store, file, name, expected string, expectedFile *string) *Class {
	t.Helper()
	c := &Class{File: file, Name: name, ParentUnknown: true, ExpectedParent: ptr(expected), ExpectedParentFile: expectedFile}
	_, err := s.InsertClass(c)
	require.NoError(t, err)
	return c
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"files", "classes", "methods", "global_statements",
		"class_tags", "class_tag_args", "method_tags", "method_tag_args",
		"global_statement_tags", "global_statement_tag_args",
	}
	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

// =============================================================================
// Files
// =============================================================================

func TestUpsertFile_UpdatesHash(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	id1, err := s.UpsertFile(&File{Key: "a", Path: "/src/a.ts", Hash: "1", LastIndexed: now})
	require.NoError(t, err)
	id2, err := s.UpsertFile(&File{Key: "a", Path: "/src/a.ts", Hash: "2", LastIndexed: now})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	f, err := s.FileByKey("a")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "2", f.Hash)

	missing, err := s.FileByKey("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("class A {}")), ContentHash([]byte("class A {}")))
	assert.NotEqual(t, ContentHash([]byte("class A {}")), ContentHash([]byte("class B {}")))
}

// =============================================================================
// Classes
// =============================================================================

func TestClassByFileName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	base := insertTestClass(t, s, "base", "Base", nil)

	got, err := s.ClassByFileName("base", "Base")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, base.ID, got.ID)
	assert.Nil(t, got.ParentID)
	assert.False(t, got.ParentUnknown)

	none, err := s.ClassByFileName("base", "Other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInsertClass_DuplicateIdentityFails(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestClass(t, s, "a", "A", nil)
	_, err := s.InsertClass(&Class{File: "a", Name: "A"})
	require.Error(t, err)
}

func TestPendingExpecting_FileMatching(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	targeted := insertPendingClass(t, s, "child", "Targeted", "Parent", ptr("parent"))
	sameFile := insertPendingClass(t, s, "parent", "Local", "Parent", nil)
	insertPendingClass(t, s, "elsewhere", "Unrelated", "Parent", nil)
	insertPendingClass(t, s, "child", "WrongFile", "Parent", ptr("other"))

	got, err := s.PendingExpecting("Parent", "parent")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, targeted.ID, got[0].ID)
	assert.Equal(t, sameFile.ID, got[1].ID)
}

func TestSetParent_ClearsExpectation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	parent := insertTestClass(t, s, "p", "P", nil)
	child := insertPendingClass(t, s, "c", "C", "P", ptr("p"))

	require.NoError(t, s.SetParent(child.ID, parent.ID))

	got, err := s.ClassByID(child.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)
	assert.False(t, got.ParentUnknown)
	assert.Nil(t, got.ExpectedParent)
	assert.Nil(t, got.ExpectedParentFile)
}

// =============================================================================
// Tags
// =============================================================================

func TestTags_OrderAndArgs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	c := insertTestClass(t, s, "a", "A", nil)

	in := []Tag{
		{Name: "limit", Args: []string{"3", `"high value"`}},
		{Name: "flag", Args: []string{}},
		{Name: "limit", Args: []string{"4"}},
	}
	require.NoError(t, s.InsertTags(OwnerClass, c.ID, in))

	got, err := s.Tags(OwnerClass, c.ID)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// Tag tables are per owner kind.
	other, err := s.Tags(OwnerMethod, c.ID)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGlobalStatementsTagged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	g1 := &GlobalStatement{File: "a", Text: "exportGlobal('a', A);"}
	_, err := s.InsertGlobalStatement(g1)
	require.NoError(t, err)
	require.NoError(t, s.InsertTags(OwnerGlobalStatement, g1.ID, []Tag{{Name: "exportGlobal", Args: []string{}}}))

	g2 := &GlobalStatement{File: "a", Text: "other();"}
	_, err = s.InsertGlobalStatement(g2)
	require.NoError(t, err)
	require.NoError(t, s.InsertTags(OwnerGlobalStatement, g2.ID, []Tag{{Name: "note", Args: []string{}}}))

	got, err := s.GlobalStatementsTagged("exportGlobal")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, g1.Text, got[0].Text)
}

// =============================================================================
// Invalidation
// =============================================================================

func TestInvalidateFile_DemotesDependentsAndDeletes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	parent := insertTestClass(t, s, "b", "Parent", nil)
	require.NoError(t, s.InsertTags(OwnerClass, parent.ID, []Tag{{Name: "x", Args: []string{"1"}}}))
	m := &Method{ClassID: parent.ID, Name: "run"}
	_, err := s.InsertMethod(m)
	require.NoError(t, err)
	require.NoError(t, s.InsertTags(OwnerMethod, m.ID, []Tag{{Name: "emptySuper", Args: []string{}}}))
	g := &GlobalStatement{File: "b", Text: "exportGlobal('p', Parent);"}
	_, err = s.InsertGlobalStatement(g)
	require.NoError(t, err)
	require.NoError(t, s.InsertTags(OwnerGlobalStatement, g.ID, []Tag{{Name: "exportGlobal", Args: []string{}}}))
	_, err = s.UpsertFile(&File{Key: "b", Path: "/src/b.ts", Hash: "h", LastIndexed: time.Now()})
	require.NoError(t, err)

	child := insertTestClass(t, s, "a", "Child", &parent.ID)

	var stats InvalidationStats
	err = s.WithTransaction(context.Background(), func(tx *Store) error {
		var err error
		stats, err = tx.InvalidateFile("b")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, InvalidationStats{Classes: 1, Methods: 1, GlobalStatements: 1, Demoted: 1}, stats)

	got, err := s.ClassByID(child.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.True(t, got.ParentUnknown)
	assert.Equal(t, ptr("Parent"), got.ExpectedParent)
	assert.Equal(t, ptr("b"), got.ExpectedParentFile)

	for _, table := range []string{
		"methods", "method_tags", "class_tags", "class_tag_args",
		"global_statements", "global_statement_tags", "files",
	} {
		assert.Zero(t, countRows(t, s, table), table)
	}
	assert.Equal(t, 1, countRows(t, s, "classes"))
}

func TestInvalidateFile_UnknownFileIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	stats, err := s.InvalidateFile("missing")
	require.NoError(t, err)
	assert.Equal(t, InvalidationStats{}, stats)
}

// =============================================================================
// Transactions
// =============================================================================

func TestWithTransaction_RollbackOnError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTransaction(context.Background(), func(tx *Store) error {
		insertTestClass(t, tx, "a", "A", nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countRows(t, s, "classes"))
}

func TestWithReadTransaction_SeesCommittedState(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestClass(t, s, "a", "A", nil)

	err := s.WithReadTransaction(context.Background(), func(snap *Store) error {
		classes, err := snap.ClassesByFile("a")
		require.NoError(t, err)
		assert.Len(t, classes, 1)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// Snapshot
// =============================================================================

func TestSnapshot_IsIDFree(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	p := insertTestClass(t, s, "b", "P", nil)
	insertTestClass(t, s, "a", "C", &p.ID)
	insertPendingClass(t, s, "a", "D", "Missing", ptr("z"))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Classes, 3)
	assert.Equal(t, "C", snap.Classes[0].Name)
	assert.Equal(t, "b:P", snap.Classes[0].Parent)
	assert.Equal(t, "D", snap.Classes[1].Name)
	assert.True(t, snap.Classes[1].ParentUnknown)
	assert.Equal(t, "Missing", snap.Classes[1].ExpectedParent)
	assert.Equal(t, "z", snap.Classes[1].ExpectedParentFile)
}
