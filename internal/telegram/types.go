package telegram

import (
	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

type ParseMode = string

const (
	ModeHTML = "HTML"
)

type ChatAction string

const (
	ActionTyping      ChatAction = "typing"
	ActionUploadPhoto ChatAction = "upload_photo"
)

type (
	Update          = tgbotapi.Update
	MessageOriginal = tgbotapi.Message
	FileBytes       = tgbotapi.FileBytes
	RequestFileData = tgbotapi.RequestFileData
)

type Message struct {
	MessageID int
	Chat      Chat
	Text      string
	From      User
}

type User struct {
	ID        int64
	FirstName string
	UserName  string
}

type Chat struct {
	ID   int64
	Type string
}

type UpdateConfig struct {
	Offset  int
	Limit   int
	Timeout int
}

type MessageConfig interface {
	ToChattable() tgbotapi.Chattable
}

type TextMessage struct {
	ChatID              int64
	Text                string
	ReplyTo             int
	LinkPreviewDisabled bool
	ParseMode           ParseMode
}

func NewMessage(chatID int64, text string) TextMessage {
	return TextMessage{
		ChatID: chatID,
		Text:   text,
	}
}

func (m TextMessage) ToChattable() tgbotapi.Chattable {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyParameters.MessageID = m.ReplyTo
	msg.ParseMode = m.ParseMode
	msg.LinkPreviewOptions.IsDisabled = m.LinkPreviewDisabled
	return msg
}

type PhotoMessage struct {
	ChatID  int64
	Photo   RequestFileData
	Caption string
	ReplyTo int
}

func NewPhotoMessage(chatID int64, photo RequestFileData) PhotoMessage {
	return PhotoMessage{
		ChatID: chatID,
		Photo:  photo,
	}
}

func (m PhotoMessage) ToChattable() tgbotapi.Chattable {
	msg := tgbotapi.NewPhoto(m.ChatID, m.Photo)
	msg.Caption = m.Caption
	msg.ReplyParameters.MessageID = m.ReplyTo
	return msg
}

type Client interface {
	Send(msg MessageConfig) (*Message, error)
	SendChatAction(chatID int64, action ChatAction) error
	GetFileURL(fileID string) (string, error)
	GetUpdatesChan(config UpdateConfig) <-chan Update
	NewUpdate(offset, timeout, limit int) UpdateConfig
	Self() User
}
