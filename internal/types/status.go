package types

// Status tracks the storage lifecycle of a record and decides whether it is
// returned by queries. It is unrelated to the billing status of a
// subscription or an invoice.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
