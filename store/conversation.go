package store

// Conversation is a titled, ordered sequence of messages owned by one user.
// UpdatedTs moves on every new message; Model remembers the last model the
// user selected for this conversation.
type Conversation struct {
	UID       string
	Title     string
	Model     string
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	UserID    int32
}

type FindConversation struct {
	ID     *int32
	UID    *string
	UserID *int32
}

type UpdateConversation struct {
	Title     *string
	Model     *string
	UpdatedTs *int64
	ID        int32
}

type DeleteConversation struct {
	ID int32
}
