package models

// ChangeKind classifies a document change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Collections that emit change events.
const (
	CollectionPosts = "posts"
	CollectionUsers = "users"
)

// Change describes a committed write to a collection. Keys carries the
// indexed fields subscribers filter on (e.g. "username", "author_username").
type Change struct {
	Collection string            `json:"collection"`
	Kind       ChangeKind        `json:"kind"`
	DocID      string            `json:"docId"`
	Keys       map[string]string `json:"keys,omitempty"`
}

// Key returns Keys[name], or "" when unset.
func (c Change) Key(name string) string {
	if c.Keys == nil {
		return ""
	}
	return c.Keys[name]
}
