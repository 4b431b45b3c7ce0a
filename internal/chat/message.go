// ABOUTME: Message and conversation types shared by the engine components
// ABOUTME: Defines the (CreatedAt, ID) total order that all views preserve

package chat

import "time"

// AuthorKind identifies who authored a message. A message is authored by
// exactly one of the two kinds, never both.
type AuthorKind string

const (
	AuthorUser AuthorKind = "user"
	AuthorBot  AuthorKind = "bot"
)

// Origin distinguishes store-confirmed messages from local placeholders.
type Origin string

const (
	// OriginAuthoritative marks a message confirmed by the backing store,
	// delivered via the live feed and carrying a permanent id.
	OriginAuthoritative Origin = "authoritative"
	// OriginOptimistic marks a locally synthesized placeholder shown before
	// server confirmation. Its ID is a provisional, client-generated uuid.
	OriginOptimistic Origin = "optimistic"
)

// Message is a single conversation message.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	CreatedAt      time.Time
	AuthorKind     AuthorKind
	AuthorID       string // human author when AuthorKind == AuthorUser, empty for bot
	Origin         Origin
}

// Less reports whether m sorts before other in the (CreatedAt, ID) total
// order. This ordering is stable across snapshot arrivals: the store never
// re-sorts by arrival order.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Conversation is the metadata for a message thread. Conversations are
// created and mutated by the list/CRUD collaborator; the engine only reads
// them.
type Conversation struct {
	ID        string
	Title     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session identifies the authenticated viewer. It is supplied by the
// external authentication collaborator and is a read-only input here.
type Session struct {
	UserID      string
	DisplayName string
}
