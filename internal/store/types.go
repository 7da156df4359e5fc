package store

import "time"

type File struct {
	ID          int64
	Key         string
	Path        string
	Hash        string
	LastIndexed time.Time
}

// Class is a class record. ParentID is set only while resolved;
// ExpectedParent (and optionally ExpectedParentFile) only while pending.
type Class struct {
	ID                 int64
	File               string
	Name               string
	ParentID           *int64
	ParentUnknown      bool
	ExpectedParent     *string
	ExpectedParentFile *string
}

type Method struct {
	ID      int64
	ClassID int64
	Name    string
}

type GlobalStatement struct {
	ID   int64
	File string
	Text string
}

// Tag is a stored tag with its ordered arguments.
type Tag struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args" yaml:"args"`
}

// TagOwner selects which of the parallel tag tables a tag belongs to.
type TagOwner int

const (
	OwnerClass TagOwner = iota
	OwnerMethod
	OwnerGlobalStatement
)
