package core

import (
	"context"
	"strings"
	"time"

	"github.com/snusnumrick/robie/internal/ai"
	"github.com/snusnumrick/robie/internal/art"
	"github.com/snusnumrick/robie/internal/chat"
	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
	"github.com/snusnumrick/robie/internal/search"
	"github.com/snusnumrick/robie/internal/service"
	"github.com/snusnumrick/robie/internal/telegram"
)

const (
	keywordGoogle = "google"
	keywordBing   = "bing"
	keywordDraw   = "draw"
	keywordPaint  = "paint"

	// neutral body temperature maps to a neutral sampling temperature
	neutralBias = 36.5

	paintPreamble = `In a short sentence, create the ultimate %s image description.
using descriptive language create a vivid and evocative image in the mind of the viewer,
give extremely intricate details, portray it hyper-realistically, high-resolution image,
add the perfect artist for the job, add art movements,
styles and techniques that would match the artwork,
with luxury of attention to every small detail, hyper-maximalist,
featuring uniqueness and originality, sense of awe, must be a perfect, groundbreaking, breathtaking,
amazing, incredible, stunning, epic masterpiece.`
)

// Completer produces a chat completion for an ordered message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message, temperature float64, maxTokens int) (*ai.Completion, error)
}

// Captioner derives a text caption from an image.
type Captioner interface {
	Caption(ctx context.Context, imageURL string) (string, error)
}

// Transcriber derives text from a voice recording.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Artist renders an image from a weighted text subject.
type Artist interface {
	Generate(ctx context.Context, subject string) (*art.Result, error)
}

// WebSearcher answers a query with a plain-text snippet, "" when it
// has nothing.
type WebSearcher interface {
	Search(ctx context.Context, query, locale string) (string, error)
}

// Conversational answers a query with a composed reply, possibly
// containing markdown bold spans and links.
type Conversational interface {
	Ask(ctx context.Context, query, locale string) (string, error)
}

// Router owns one turn of a conversation: command check, history
// init/trim, modality dispatch, collaborator call, state update, reply.
type Router struct {
	tg             telegram.Client
	store          *chat.Store
	localizer      *service.Localizer
	logger         logger.Logger
	chatCfg        config.ChatConfig
	openAICfg      config.OpenAIConfig
	completer      Completer
	captioner      Captioner
	transcriber    Transcriber
	artist         Artist
	searcher       WebSearcher
	conversational Conversational
}

type RouterDeps struct {
	Tg             telegram.Client
	Store          *chat.Store
	Localizer      *service.Localizer
	Logger         logger.Logger
	ChatCfg        config.ChatConfig
	OpenAICfg      config.OpenAIConfig
	Completer      Completer
	Captioner      Captioner
	Transcriber    Transcriber
	Artist         Artist
	Searcher       WebSearcher
	Conversational Conversational
}

func NewRouter(deps RouterDeps) *Router {
	return &Router{
		tg:             deps.Tg,
		store:          deps.Store,
		localizer:      deps.Localizer,
		logger:         deps.Logger,
		chatCfg:        deps.ChatCfg,
		openAICfg:      deps.OpenAICfg,
		completer:      deps.Completer,
		captioner:      deps.Captioner,
		transcriber:    deps.Transcriber,
		artist:         deps.Artist,
		searcher:       deps.Searcher,
		conversational: deps.Conversational,
	}
}

// Route processes one inbound message to completion. Exactly one
// capability runs per message; attachments win over text keywords.
func (r *Router) Route(ctx context.Context, msg *telegram.MessageOriginal) {
	chatID := msg.Chat.ID
	trimmed := strings.TrimSpace(msg.Text)
	text := strings.ToLower(trimmed)

	if text != "" && r.interpretCommand(chatID, text) {
		return
	}

	r.prepareHistory(chatID)

	locale := ""
	if msg.From != nil {
		locale = msg.From.LanguageCode
	}

	switch {
	case len(msg.Photo) > 0:
		r.handlePhoto(ctx, chatID, msg)
	case msg.Voice != nil:
		r.handleVoice(ctx, chatID, msg)
	case text == "":
		return
	case strings.HasPrefix(text, keywordGoogle):
		r.handleWebSearch(ctx, chatID, remainderAfter(trimmed, keywordGoogle), locale)
	case strings.HasPrefix(text, keywordBing):
		r.handleConversational(ctx, chatID, remainderAfter(trimmed, keywordBing), locale)
	case strings.HasPrefix(text, keywordDraw), strings.HasPrefix(text, keywordPaint):
		r.handleArt(ctx, chatID, text)
	default:
		r.handleChat(ctx, chatID, msg.Text)
	}
}

// prepareHistory lazily seeds the system message and trims an existing
// history to the byte budget.
func (r *Router) prepareHistory(chatID int64) {
	history := r.store.History(chatID)
	if len(history) == 0 {
		history = []chat.Message{chat.System(r.chatCfg.SystemPrompt)}
	} else {
		history = chat.Trim(history, r.chatCfg.ContextSize)
	}
	if err := r.store.SetHistory(chatID, history); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to persist history")
	}
}

func (r *Router) handleChat(ctx context.Context, chatID int64, text string) {
	r.appendHistory(chatID, chat.User(text))

	stopTyping := r.startTyping(chatID, 2*time.Second)
	response := r.complete(ctx, chatID, r.store.History(chatID))
	stopTyping()

	if response.Role == chat.RoleAssistant {
		r.setLastArtifact(chatID, response.Content)
		r.appendHistory(chatID, response)
	}
	r.send(chatID, response.Content)
}

func (r *Router) handlePhoto(ctx context.Context, chatID int64, msg *telegram.MessageOriginal) {
	// the last size is the largest one
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	imageURL, err := r.tg.GetFileURL(fileID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to resolve photo URL")
		return
	}

	stopTyping := r.startTyping(chatID, 2*time.Second)
	caption, err := r.captioner.Caption(ctx, imageURL)
	stopTyping()

	if err != nil {
		r.logger.WithError(err).Error("Caption request failed")
		return
	}
	if caption == "" {
		return
	}

	r.addSpend(chatID, r.chatCfg.CaptionPrice)
	r.setLastArtifact(chatID, caption)
	r.appendHistory(chatID, chat.User(caption))
	r.send(chatID, caption)
}

func (r *Router) handleVoice(ctx context.Context, chatID int64, msg *telegram.MessageOriginal) {
	r.sendTyping(chatID)

	audioURL, err := r.tg.GetFileURL(msg.Voice.FileID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to resolve voice URL")
		return
	}

	transcript, err := r.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		r.logger.WithError(err).Error("Transcription failed")
		return
	}
	if transcript == "" {
		return
	}

	r.setLastArtifact(chatID, transcript)
	r.appendHistory(chatID, chat.User(transcript))
	r.send(chatID, transcript)
}

func (r *Router) handleWebSearch(ctx context.Context, chatID int64, query, locale string) {
	r.sendTyping(chatID)

	query = r.resolveQuery(chatID, query)
	if query == "" {
		r.send(chatID, r.L("dont_know", nil))
		return
	}

	snippet, err := r.searcher.Search(ctx, query, locale)
	if err != nil {
		r.logger.WithError(err).Error("Web search failed")
		snippet = ""
	}
	if snippet == "" {
		r.send(chatID, r.L("dont_know", nil))
		return
	}

	if len(snippet) > r.chatCfg.ContextSize {
		snippet = snippet[:r.chatCfg.ContextSize]
	}

	// the snippet rides along as ephemeral context: answer the query
	// over it, then restore the history so search turns leave no trace
	saved := r.store.History(chatID)
	r.appendHistory(chatID, chat.User(snippet))
	if err := r.store.SetHistory(chatID, chat.Trim(r.store.History(chatID), r.chatCfg.ContextSize)); err != nil {
		r.logger.WithError(err).Error("Failed to persist history")
	}

	r.handleChat(ctx, chatID, query)

	if err := r.store.SetHistory(chatID, saved); err != nil {
		r.logger.WithError(err).Error("Failed to restore history")
	}
}

func (r *Router) handleConversational(ctx context.Context, chatID int64, query, locale string) {
	query = r.resolveQuery(chatID, query)
	if query == "" {
		r.send(chatID, r.L("dont_know", nil))
		return
	}

	stopTyping := r.startTyping(chatID, time.Second)
	reply, err := r.conversational.Ask(ctx, query, locale)
	stopTyping()

	if err != nil {
		r.logger.WithError(err).Error("Conversational search failed")
		reply = ""
	}
	if reply == "" {
		r.send(chatID, r.L("dont_know", nil))
		return
	}

	plain := search.ToPlain(reply)
	r.setLastArtifact(chatID, plain)
	r.appendHistory(chatID, chat.Assistant(plain))

	message := telegram.NewMessage(chatID, search.ToHTML(reply))
	message.ParseMode = telegram.ModeHTML
	if _, err := r.tg.Send(message); err != nil {
		r.logger.WithError(err).Error("Failed to send message")
	}
}

func (r *Router) handleArt(ctx context.Context, chatID int64, text string) {
	if text == keywordDraw || text == keywordPaint {
		// reuse the previous turn's derived content as the subject
		text = strings.Replace(r.store.LastArtifact(chatID), "child", "", 1)
	} else {
		r.setLastArtifact(chatID, text)
	}

	if text == "" {
		return
	}

	r.appendHistory(chatID, chat.User(text))

	stopTyping := r.startTyping(chatID, 2*time.Second)
	defer stopTyping()

	if strings.HasPrefix(text, keywordPaint) {
		text = r.expandSubject(ctx, chatID, text[len(keywordPaint):])
		if text == "" {
			return
		}
	}
	text = strings.TrimPrefix(text, keywordDraw)

	result, err := r.artist.Generate(ctx, text)
	stopTyping()
	if err != nil {
		r.logger.WithError(err).Error("Image generation failed")
		return
	}

	if result.OK {
		r.addSpend(chatID, r.chatCfg.ImagePrice)
		photo := telegram.NewPhotoMessage(chatID, telegram.FileBytes{Name: "art.png", Bytes: result.Data})
		if _, err := r.tg.Send(photo); err != nil {
			r.logger.WithError(err).Error("Failed to send photo")
		}
	} else {
		r.send(chatID, result.Status)
	}
}

// expandSubject turns a bare paint subject into a richer visual
// description through an auxiliary completion. The expansion is echoed
// to the user and, on success, appended to history as an assistant
// turn.
func (r *Router) expandSubject(ctx context.Context, chatID int64, subject string) string {
	prompt := []chat.Message{
		chat.User(strings.Replace(paintPreamble, "%s", subject, 1)),
	}
	response := r.complete(ctx, chatID, prompt)

	if response.Role == chat.RoleAssistant {
		r.appendHistory(chatID, response)
		r.send(chatID, r.L("rephrased", nil)+" \n\n"+response.Content)
		return response.Content
	}

	r.send(chatID, r.L("sorry", nil)+" \n\n"+response.Content)
	return response.Content
}

// complete calls the completion provider, accounts its cost and folds
// failures into a synthetic system-role message instead of an error.
func (r *Router) complete(ctx context.Context, chatID int64, messages []chat.Message) chat.Message {
	response, err := r.completer.Complete(ctx, messages, r.samplingTemperature(chatID), r.openAICfg.MaxTokens)
	if err != nil {
		return chat.Message{
			Role:    chat.RoleSystem,
			Content: r.L("completion_failed", map[string]any{"Error": err.Error()}),
		}
	}

	if response.TotalTokens > 0 {
		r.addSpend(chatID, float64(response.TotalTokens)/1000*r.openAICfg.Price)
	}

	return chat.Message{Role: response.Role, Content: response.Content}
}

// samplingTemperature maps the stored body-temperature bias onto the
// provider's scale; the 36.5 default lands on a neutral 0.5.
func (r *Router) samplingTemperature(chatID int64) float64 {
	bias, ok := r.store.Temperature(chatID)
	if !ok {
		bias = neutralBias
	}
	return (bias-neutralBias)/10 + 0.5
}

// resolveQuery falls back to the most recent user message when the
// keyword came with no remainder.
func (r *Router) resolveQuery(chatID int64, query string) string {
	if query != "" {
		return query
	}
	return chat.LastUserContent(r.store.History(chatID))
}

func (r *Router) appendHistory(chatID int64, messages ...chat.Message) {
	if err := r.store.Append(chatID, messages...); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to persist history")
	}
}

func (r *Router) setLastArtifact(chatID int64, artifact string) {
	if err := r.store.SetLastArtifact(chatID, artifact); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to persist last artifact")
	}
}

func (r *Router) addSpend(chatID int64, amount float64) {
	if err := r.store.AddSpend(chatID, amount); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to persist spend")
	}
}

// send delivers a plain text message; delivery failures are logged,
// never surfaced.
func (r *Router) send(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := r.tg.Send(telegram.NewMessage(chatID, text)); err != nil {
		r.logger.WithError(err).Error("Failed to send message")
	}
}

func (r *Router) L(messageID string, data map[string]any) string {
	return r.localizer.Localize(messageID, data)
}

// remainderAfter strips the keyword and one separating character from
// the trimmed, original-case text the keyword was matched against.
func remainderAfter(trimmed, keyword string) string {
	if len(trimmed) <= len(keyword)+1 {
		return ""
	}
	return trimmed[len(keyword)+1:]
}
