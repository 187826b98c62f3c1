package domain

import "fmt"

const (
	RoleHuman = "human"
	RoleAI    = "ai"

	DefaultChatTitle = "New chat"
	MaxChatTitleLen  = 80
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatMeta struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func SessionID(userID, chatID string) string {
	return fmt.Sprintf("user:%s:chat:%s", userID, chatID)
}
