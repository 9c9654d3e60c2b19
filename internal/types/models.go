package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "user" }

// Conversation ties a client and a provider together, optionally anchored to
// a booking.
type Conversation struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ClientID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"client_id"`
	ProviderID uuid.UUID  `gorm:"type:uuid;index;not null" json:"provider_id"`
	BookingID  *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

// Participants returns both sides of the conversation.
func (c *Conversation) Participants() []uuid.UUID {
	return []uuid.UUID{c.ClientID, c.ProviderID}
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return userID == c.ClientID || userID == c.ProviderID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if userID == c.ClientID {
		return c.ProviderID
	}
	return c.ClientID
}

type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;index;not null" json:"conversation_id"`
	SenderID       uuid.UUID      `gorm:"type:uuid;index;not null" json:"sender_id"`
	Body           string         `gorm:"not null" json:"body"`
	Meta           datatypes.JSON `json:"meta,omitempty"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Message) TableName() string { return "message" }

type MessageReaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_message_user_emoji" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_message_user_emoji" json:"user_id"`
	Emoji     string    `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageReaction) TableName() string { return "message_reaction" }
