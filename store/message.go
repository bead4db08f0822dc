package store

// MessageType distinguishes plain text from generated images.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Message is one entry of a conversation transcript. Ordering within a
// conversation is creation-time order; role alternation is not enforced
// (edits and regenerations can transiently produce consecutive same-role
// entries).
type Message struct {
	UID            string
	Role           string // user, assistant, system
	Content        string
	Type           MessageType
	ImageURL       string
	Model          string // assistant messages only: the model that produced it
	CreatedTs      int64
	ID             int32
	ConversationID int32
	Edited         bool
}

type FindMessage struct {
	ID             *int32
	ConversationID *int32
}

type UpdateMessage struct {
	Content *string
	Edited  *bool
	ID      int32
}

type DeleteMessage struct {
	ID int32
}
