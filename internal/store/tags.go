package store

import (
	"fmt"
)

type tagTable struct {
	tags string
	args string
}

var tagTables = map[TagOwner]tagTable{
	OwnerClass:           {tags: "class_tags", args: "class_tag_args"},
	OwnerMethod:          {tags: "method_tags", args: "method_tag_args"},
	OwnerGlobalStatement: {tags: "global_statement_tags", args: "global_statement_tag_args"},
}

func (o TagOwner) String() string {
	switch o {
	case OwnerClass:
		return "class"
	case OwnerMethod:
		return "method"
	case OwnerGlobalStatement:
		return "global_statement"
	}
	return fmt.Sprintf("TagOwner(%d)", int(o))
}

func tablesFor(owner TagOwner) (tagTable, error) {
	t, ok := tagTables[owner]
	if !ok {
		return tagTable{}, fmt.Errorf("unknown tag owner %s", owner)
	}
	return t, nil
}

// InsertTags stores ts, in order, for the given owner row.
func (s *Store) InsertTags(owner TagOwner, ownerID int64, ts []Tag) error {
	t, err := tablesFor(owner)
	if err != nil {
		return err
	}
	for i, tag := range ts {
		res, err := s.q.Exec("INSERT INTO "+t.tags+" (owner_id, idx, name) VALUES (?, ?, ?)", ownerID, i, tag.Name)
		if err != nil {
			return fmt.Errorf("insert %s tag: %w", owner, err)
		}
		tagID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for j, arg := range tag.Args {
			if _, err := s.q.Exec("INSERT INTO "+t.args+" (tag_id, idx, value) VALUES (?, ?, ?)", tagID, j, arg); err != nil {
				return fmt.Errorf("insert %s tag arg: %w", owner, err)
			}
		}
	}
	return nil
}

// Tags returns the tags of an owner row in the order they were written.
// Args is never nil.
func (s *Store) Tags(owner TagOwner, ownerID int64) ([]Tag, error) {
	t, err := tablesFor(owner)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(
		"SELECT tg.id, tg.name, a.value FROM "+t.tags+" tg LEFT JOIN "+t.args+" a ON a.tag_id = tg.id"+
			" WHERE tg.owner_id = ? ORDER BY tg.idx, tg.id, a.idx",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s tags: %w", owner, err)
	}
	defer rows.Close()

	out := []Tag{}
	lastID := int64(-1)
	for rows.Next() {
		var id int64
		var name string
		var value *string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, fmt.Errorf("scan %s tag: %w", owner, err)
		}
		if id != lastID {
			out = append(out, Tag{Name: name, Args: []string{}})
			lastID = id
		}
		if value != nil {
			out[len(out)-1].Args = append(out[len(out)-1].Args, *value)
		}
	}
	return out, rows.Err()
}

// deleteTags removes the tags and tag args of the given owner rows.
func (s *Store) deleteTags(owner TagOwner, ownerIDs []int64) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	t, err := tablesFor(owner)
	if err != nil {
		return err
	}
	ph := placeholderList(len(ownerIDs))
	args := int64sToArgs(ownerIDs)
	if _, err := s.q.Exec(
		"DELETE FROM "+t.args+" WHERE tag_id IN (SELECT id FROM "+t.tags+" WHERE owner_id IN ("+ph+"))", args...,
	); err != nil {
		return fmt.Errorf("delete %s tag args: %w", owner, err)
	}
	if _, err := s.q.Exec("DELETE FROM "+t.tags+" WHERE owner_id IN ("+ph+")", args...); err != nil {
		return fmt.Errorf("delete %s tags: %w", owner, err)
	}
	return nil
}
