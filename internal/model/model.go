package model

// All returns the tables owned by the messaging core, in migration order.
func All() []interface{} {
	return []interface{}{
		&Message{},
		&Conversation{},
		&ConversationState{},
		&Notification{},
	}
}
