package domain

// ChatMessage is one realtime chat record, for both 1:1 conversations and
// pack channels.
type ChatMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// ChatMeta is the per-user conversation index entry holding last-message
// metadata for chat list previews.
type ChatMeta struct {
	ChatID          string `json:"chatId"`
	LastMessage     string `json:"lastMessage"`
	LastSenderID    string `json:"lastSenderId"`
	LastMessageTime int64  `json:"lastMessageTime"`
}
