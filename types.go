package lineage

import "github.com/jward/lineage/internal/store"

// Public aliases for the store types that appear in the Engine and
// QueryBuilder API.

type Store = store.Store
type Class = store.Class
type File = store.File
type Tag = store.Tag
type Snapshot = store.Snapshot
