package models

// User is the sender of a bot update.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies where a message lives.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Media is the attachment shape shared by documents, audio and video.
type Media struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// PhotoSize is one resolution variant of a photo.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Message is the part of a backend message the service reads. At most one
// of Document, Audio, Video and Photo is set for a stored file.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	ViaBot    *User       `json:"via_bot,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Document  *Media      `json:"document,omitempty"`
	Audio     *Media      `json:"audio,omitempty"`
	Video     *Media      `json:"video,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}
