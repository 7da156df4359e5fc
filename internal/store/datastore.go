package store

// ClassStore is the class-table access the parent resolver needs. Store
// satisfies it directly and inside WithTransaction.
type ClassStore interface {
	InsertClass(c *Class) (int64, error)
	ClassByFileName(file, name string) (*Class, error)
	PendingExpecting(name, file string) ([]*Class, error)
	SetParent(id, parentID int64) error
}

// Compile-time check: *Store satisfies ClassStore.
var _ ClassStore = (*Store)(nil)
