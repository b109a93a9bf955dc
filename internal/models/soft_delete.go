package models

// SoftDeletable is implemented by every entity that is retired by flipping
// its is_active column instead of removing the row.
type SoftDeletable interface {
	IsActive() bool
	MarkDeleted()
}

var (
	_ SoftDeletable = (*Channel)(nil)
	_ SoftDeletable = (*ChatMember)(nil)
	_ SoftDeletable = (*ChatMessage)(nil)
	_ SoftDeletable = (*MessageReaction)(nil)
)
