package store

import "fmt"

// InvalidationStats counts what InvalidateFile removed.
type InvalidationStats struct {
	Classes          int
	Methods          int
	GlobalStatements int
	Demoted          int64
}

// InvalidateFile removes every fact derived from file. Classes elsewhere that
// resolved to one of the file's classes are first flipped back to pending,
// expecting that class's (name, file), so they re-link when it reappears.
// Call it inside WithTransaction so readers never see a half-cleared file.
func (s *Store) InvalidateFile(file string) (InvalidationStats, error) {
	var stats InvalidationStats

	classes, err := s.ClassesByFile(file)
	if err != nil {
		return stats, fmt.Errorf("invalidate %s: %w", file, err)
	}

	// Demote dependents before anything is deleted.
	for _, c := range classes {
		n, err := s.DemoteDependents(c.ID, c.Name, c.File)
		if err != nil {
			return stats, fmt.Errorf("invalidate %s: %w", file, err)
		}
		stats.Demoted += n
	}

	classIDs := make([]int64, 0, len(classes))
	for _, c := range classes {
		classIDs = append(classIDs, c.ID)
	}
	var methodIDs []int64
	for _, id := range classIDs {
		methods, err := s.MethodsByClass(id)
		if err != nil {
			return stats, fmt.Errorf("invalidate %s: %w", file, err)
		}
		for _, m := range methods {
			methodIDs = append(methodIDs, m.ID)
		}
	}

	if err := s.deleteTags(OwnerMethod, methodIDs); err != nil {
		return stats, fmt.Errorf("invalidate %s: %w", file, err)
	}
	if len(methodIDs) > 0 {
		if _, err := s.q.Exec(
			"DELETE FROM methods WHERE id IN ("+placeholderList(len(methodIDs))+")", int64sToArgs(methodIDs)...,
		); err != nil {
			return stats, fmt.Errorf("invalidate %s: delete methods: %w", file, err)
		}
	}
	if err := s.deleteTags(OwnerClass, classIDs); err != nil {
		return stats, fmt.Errorf("invalidate %s: %w", file, err)
	}
	if len(classIDs) > 0 {
		if _, err := s.q.Exec(
			"DELETE FROM classes WHERE id IN ("+placeholderList(len(classIDs))+")", int64sToArgs(classIDs)...,
		); err != nil {
			return stats, fmt.Errorf("invalidate %s: delete classes: %w", file, err)
		}
	}

	globals, err := s.GlobalStatementsByFile(file)
	if err != nil {
		return stats, fmt.Errorf("invalidate %s: %w", file, err)
	}
	globalIDs := make([]int64, 0, len(globals))
	for _, g := range globals {
		globalIDs = append(globalIDs, g.ID)
	}
	if err := s.deleteTags(OwnerGlobalStatement, globalIDs); err != nil {
		return stats, fmt.Errorf("invalidate %s: %w", file, err)
	}
	if _, err := s.q.Exec("DELETE FROM global_statements WHERE file = ?", file); err != nil {
		return stats, fmt.Errorf("invalidate %s: delete global statements: %w", file, err)
	}
	if _, err := s.q.Exec("DELETE FROM files WHERE key = ?", file); err != nil {
		return stats, fmt.Errorf("invalidate %s: delete file record: %w", file, err)
	}

	stats.Classes = len(classIDs)
	stats.Methods = len(methodIDs)
	stats.GlobalStatements = len(globalIDs)
	return stats, nil
}
