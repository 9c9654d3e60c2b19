package realtime

import "github.com/google/uuid"

// Channel naming is owned by the producing/consuming layers; the relay treats
// names as opaque keys. Two address families exist: one channel per recipient
// and one legacy channel per conversation.

func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func ConversationChannel(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}
