package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// --- File operations ---

// UpsertFile records the content hash of an indexed file.
func (s *Store) UpsertFile(f *File) (int64, error) {
	_, err := s.q.Exec(
		`INSERT INTO files (key, path, hash, last_indexed) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET path = excluded.path, hash = excluded.hash,
		   last_indexed = excluded.last_indexed`,
		f.Key, f.Path, f.Hash, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}
	if err := s.q.QueryRow("SELECT id FROM files WHERE key = ?", f.Key).Scan(&f.ID); err != nil {
		return 0, fmt.Errorf("upsert file id: %w", err)
	}
	return f.ID, nil
}

func (s *Store) FileByKey(key string) (*File, error) {
	f := &File{}
	err := s.q.QueryRow(
		"SELECT id, key, path, hash, last_indexed FROM files WHERE key = ?", key,
	).Scan(&f.ID, &f.Key, &f.Path, &f.Hash, &f.LastIndexed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by key: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by key.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.q.Query("SELECT id, key, path, hash, last_indexed FROM files ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	files := []*File{}
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Key, &f.Path, &f.Hash, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Class operations ---

const classColumns = "id, file, name, parent_id, parent_unknown, expected_parent, expected_parent_file"

func scanClass(sc scanner) (*Class, error) {
	c := &Class{}
	var parentID sql.NullInt64
	var expected, expectedFile sql.NullString
	if err := sc.Scan(&c.ID, &c.File, &c.Name, &parentID, &c.ParentUnknown, &expected, &expectedFile); err != nil {
		return nil, err
	}
	c.ParentID = nullInt64(parentID)
	c.ExpectedParent = nullString(expected)
	c.ExpectedParentFile = nullString(expectedFile)
	return c, nil
}

func (s *Store) queryClasses(query string, args ...any) ([]*Class, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	classes := []*Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// InsertClass stores c and sets its ID.
func (s *Store) InsertClass(c *Class) (int64, error) {
	res, err := s.q.Exec(
		`INSERT INTO classes (file, name, parent_id, parent_unknown, expected_parent, expected_parent_file)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.File, c.Name, c.ParentID, c.ParentUnknown, c.ExpectedParent, c.ExpectedParentFile,
	)
	if err != nil {
		return 0, fmt.Errorf("insert class: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return id, nil
}

func (s *Store) ClassByID(id int64) (*Class, error) {
	c, err := scanClass(s.q.QueryRow("SELECT "+classColumns+" FROM classes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("class by id: %w", err)
	}
	return c, nil
}

func (s *Store) ClassByFileName(file, name string) (*Class, error) {
	c, err := scanClass(s.q.QueryRow(
		"SELECT "+classColumns+" FROM classes WHERE file = ? AND name = ?", file, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("class by file/name: %w", err)
	}
	return c, nil
}

// ClassesByFile returns the classes of a file in declaration order.
func (s *Store) ClassesByFile(file string) ([]*Class, error) {
	classes, err := s.queryClasses("SELECT "+classColumns+" FROM classes WHERE file = ? ORDER BY id", file)
	if err != nil {
		return nil, fmt.Errorf("classes by file: %w", err)
	}
	return classes, nil
}

// ClassesByName returns every class with the given name across files.
func (s *Store) ClassesByName(name string) ([]*Class, error) {
	classes, err := s.queryClasses("SELECT "+classColumns+" FROM classes WHERE name = ? ORDER BY id", name)
	if err != nil {
		return nil, fmt.Errorf("classes by name: %w", err)
	}
	return classes, nil
}

// Dependents returns the classes whose resolved parent is id.
func (s *Store) Dependents(id int64) ([]*Class, error) {
	classes, err := s.queryClasses("SELECT "+classColumns+" FROM classes WHERE parent_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	return classes, nil
}

// PendingExpecting returns the pending classes waiting for (name, file). An
// expectation without a file matches only children declared in file itself.
func (s *Store) PendingExpecting(name, file string) ([]*Class, error) {
	classes, err := s.queryClasses(
		"SELECT "+classColumns+` FROM classes
		 WHERE parent_unknown = 1 AND expected_parent = ?
		   AND (expected_parent_file = ? OR (expected_parent_file IS NULL AND file = ?))
		 ORDER BY id`,
		name, file, file,
	)
	if err != nil {
		return nil, fmt.Errorf("pending expecting: %w", err)
	}
	return classes, nil
}

// PendingClasses returns every class whose parent is not yet known.
func (s *Store) PendingClasses() ([]*Class, error) {
	classes, err := s.queryClasses("SELECT " + classColumns + " FROM classes WHERE parent_unknown = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("pending classes: %w", err)
	}
	return classes, nil
}

// SetParent resolves class id to parentID and clears its expectation.
func (s *Store) SetParent(id, parentID int64) error {
	_, err := s.q.Exec(
		`UPDATE classes SET parent_id = ?, parent_unknown = 0,
		   expected_parent = NULL, expected_parent_file = NULL
		 WHERE id = ?`,
		parentID, id,
	)
	if err != nil {
		return fmt.Errorf("set parent: %w", err)
	}
	return nil
}

// DemoteDependents flips every class whose parent is id back to pending,
// expecting (name, file).
func (s *Store) DemoteDependents(id int64, name, file string) (int64, error) {
	res, err := s.q.Exec(
		`UPDATE classes SET parent_id = NULL, parent_unknown = 1,
		   expected_parent = ?, expected_parent_file = ?
		 WHERE parent_id = ?`,
		name, file, id,
	)
	if err != nil {
		return 0, fmt.Errorf("demote dependents: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Method operations ---

func (s *Store) InsertMethod(m *Method) (int64, error) {
	res, err := s.q.Exec("INSERT INTO methods (class_id, name) VALUES (?, ?)", m.ClassID, m.Name)
	if err != nil {
		return 0, fmt.Errorf("insert method: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return id, nil
}

// MethodsByClass returns a class's methods in declaration order.
func (s *Store) MethodsByClass(classID int64) ([]*Method, error) {
	rows, err := s.q.Query("SELECT id, class_id, name FROM methods WHERE class_id = ? ORDER BY id", classID)
	if err != nil {
		return nil, fmt.Errorf("methods by class: %w", err)
	}
	defer rows.Close()
	methods := []*Method{}
	for rows.Next() {
		m := &Method{}
		if err := rows.Scan(&m.ID, &m.ClassID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// --- Global statement operations ---

func (s *Store) InsertGlobalStatement(g *GlobalStatement) (int64, error) {
	res, err := s.q.Exec("INSERT INTO global_statements (file, text) VALUES (?, ?)", g.File, g.Text)
	if err != nil {
		return 0, fmt.Errorf("insert global statement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	return id, nil
}

func (s *Store) queryGlobals(query string, args ...any) ([]*GlobalStatement, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*GlobalStatement{}
	for rows.Next() {
		g := &GlobalStatement{}
		if err := rows.Scan(&g.ID, &g.File, &g.Text); err != nil {
			return nil, fmt.Errorf("scan global statement: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GlobalStatementsByFile(file string) ([]*GlobalStatement, error) {
	out, err := s.queryGlobals("SELECT id, file, text FROM global_statements WHERE file = ? ORDER BY id", file)
	if err != nil {
		return nil, fmt.Errorf("global statements by file: %w", err)
	}
	return out, nil
}

// GlobalStatementsTagged returns, in id order, the global statements carrying
// at least one tag named tag.
func (s *Store) GlobalStatementsTagged(tag string) ([]*GlobalStatement, error) {
	out, err := s.queryGlobals(
		`SELECT g.id, g.file, g.text FROM global_statements g
		 WHERE EXISTS (SELECT 1 FROM global_statement_tags t WHERE t.owner_id = g.id AND t.name = ?)
		 ORDER BY g.id`,
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("global statements tagged %s: %w", tag, err)
	}
	return out, nil
}
