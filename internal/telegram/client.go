package telegram

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"golang.org/x/time/rate"

	"github.com/snusnumrick/robie/internal/logger"
)

// Bot API allows roughly 30 messages per second overall.
const sendRate = rate.Limit(25)

type BotClient struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  logger.Logger
}

func NewBotClient(bot *tgbotapi.BotAPI, log logger.Logger) Client {
	return &BotClient{
		bot:     bot,
		limiter: rate.NewLimiter(sendRate, 5),
		logger:  log,
	}
}

func (c *BotClient) Send(msg MessageConfig) (*Message, error) {
	_ = c.limiter.Wait(context.Background())

	sentMsg, err := c.bot.Send(msg.ToChattable())
	if err == nil {
		return adaptMessage(&sentMsg), nil
	}

	if strings.Contains(err.Error(), "Too Many Requests: retry after") {
		retryAfter := extractRetryAfter(err.Error())
		waitTime := time.Duration(retryAfter+2) * time.Second
		c.logger.WithFields(logger.Fields{
			"retry_after": retryAfter,
			"wait_time":   waitTime,
		}).Warn("Rate limit hit, waiting before retry")
		time.Sleep(waitTime)

		sentMsg, err = c.bot.Send(msg.ToChattable())
		if err == nil {
			return adaptMessage(&sentMsg), nil
		}
	}

	return nil, err
}

func (c *BotClient) SendChatAction(chatID int64, action ChatAction) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, string(action)))
	return err
}

func (c *BotClient) GetFileURL(fileID string) (string, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", err
	}
	return file.Link(c.bot.Token), nil
}

func (c *BotClient) GetUpdatesChan(config UpdateConfig) <-chan Update {
	return c.bot.GetUpdatesChan(tgbotapi.UpdateConfig{
		Offset:  config.Offset,
		Limit:   config.Limit,
		Timeout: config.Timeout,
	})
}

func (c *BotClient) NewUpdate(offset, timeout, limit int) UpdateConfig {
	return UpdateConfig{
		Offset:  offset,
		Limit:   limit,
		Timeout: timeout,
	}
}

func (c *BotClient) Self() User {
	return adaptUser(&c.bot.Self)
}

func extractRetryAfter(errMsg string) int {
	re := regexp.MustCompile(`retry after (\d+)`)
	matches := re.FindStringSubmatch(errMsg)
	if len(matches) > 1 {
		retryAfter, _ := strconv.Atoi(matches[1])
		return retryAfter
	}
	return 0
}

func adaptMessage(msg *tgbotapi.Message) *Message {
	if msg == nil {
		return nil
	}
	return &Message{
		MessageID: msg.MessageID,
		Chat:      adaptChat(&msg.Chat),
		Text:      msg.Text,
		From:      adaptUser(msg.From),
	}
}

func adaptUser(user *tgbotapi.User) User {
	if user == nil {
		return User{}
	}
	return User{
		ID:        int64(user.ID),
		FirstName: user.FirstName,
		UserName:  user.UserName,
	}
}

func adaptChat(chat *tgbotapi.Chat) Chat {
	if chat == nil {
		return Chat{}
	}
	return Chat{
		ID:   chat.ID,
		Type: chat.Type,
	}
}
