package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snusnumrick/robie/internal/ai"
	"github.com/snusnumrick/robie/internal/art"
	"github.com/snusnumrick/robie/internal/chat"
	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/database"
	"github.com/snusnumrick/robie/internal/logger"
	"github.com/snusnumrick/robie/internal/service"
	"github.com/snusnumrick/robie/internal/telegram"
)

const testSystemPrompt = "You are a helpful assistant. Your name is Robie."

type fakeTelegram struct {
	mu      sync.Mutex
	sent    []telegram.MessageConfig
	actions []telegram.ChatAction
	updates chan telegram.Update
	fileErr error
}

func (f *fakeTelegram) Send(msg telegram.MessageConfig) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &telegram.Message{}, nil
}

func (f *fakeTelegram) SendChatAction(chatID int64, action telegram.ChatAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeTelegram) GetFileURL(fileID string) (string, error) {
	if f.fileErr != nil {
		return "", f.fileErr
	}
	return "https://files.example/" + fileID, nil
}

func (f *fakeTelegram) GetUpdatesChan(config telegram.UpdateConfig) <-chan telegram.Update {
	return f.updates
}

func (f *fakeTelegram) NewUpdate(offset, timeout, limit int) telegram.UpdateConfig {
	return telegram.UpdateConfig{Offset: offset, Timeout: timeout, Limit: limit}
}

func (f *fakeTelegram) Self() telegram.User {
	return telegram.User{UserName: "robie_bot"}
}

func (f *fakeTelegram) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, msg := range f.sent {
		if text, ok := msg.(telegram.TextMessage); ok {
			texts = append(texts, text.Text)
		}
	}
	return texts
}

func (f *fakeTelegram) sentPhotos() []telegram.PhotoMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var photos []telegram.PhotoMessage
	for _, msg := range f.sent {
		if photo, ok := msg.(telegram.PhotoMessage); ok {
			photos = append(photos, photo)
		}
	}
	return photos
}

func (f *fakeTelegram) lastText() (telegram.TextMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if text, ok := f.sent[i].(telegram.TextMessage); ok {
			return text, true
		}
	}
	return telegram.TextMessage{}, false
}

type completerCall struct {
	messages    []chat.Message
	temperature float64
	maxTokens   int
}

type fakeCompleter struct {
	mu        sync.Mutex
	calls     []completerCall
	responses []*ai.Completion
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []chat.Message, temperature float64, maxTokens int) (*ai.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completerCall{
		messages:    append([]chat.Message{}, messages...),
		temperature: temperature,
		maxTokens:   maxTokens,
	})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) > 0 {
		response := f.responses[0]
		f.responses = f.responses[1:]
		return response, nil
	}
	return &ai.Completion{Role: chat.RoleAssistant, Content: "hi!", TotalTokens: 100}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompleter) lastCall(t *testing.T) completerCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeCaptioner struct {
	caption string
	err     error
	calls   int
}

func (f *fakeCaptioner) Caption(ctx context.Context, imageURL string) (string, error) {
	f.calls++
	return f.caption, f.err
}

type fakeTranscriber struct {
	transcript string
	err        error
	calls      int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	f.calls++
	return f.transcript, f.err
}

type fakeArtist struct {
	result   *art.Result
	err      error
	subjects []string
}

func (f *fakeArtist) Generate(ctx context.Context, subject string) (*art.Result, error) {
	f.subjects = append(f.subjects, subject)
	return f.result, f.err
}

type fakeSearcher struct {
	snippet string
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query, locale string) (string, error) {
	f.queries = append(f.queries, query)
	return f.snippet, f.err
}

type fakeConversational struct {
	reply   string
	err     error
	queries []string
}

func (f *fakeConversational) Ask(ctx context.Context, query, locale string) (string, error) {
	f.queries = append(f.queries, query)
	return f.reply, f.err
}

type routerFixture struct {
	router         *Router
	store          *chat.Store
	tg             *fakeTelegram
	completer      *fakeCompleter
	captioner      *fakeCaptioner
	transcriber    *fakeTranscriber
	artist         *fakeArtist
	searcher       *fakeSearcher
	conversational *fakeConversational
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"), logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := chat.NewStore(db, logger.NewTestLogger())

	localizer, err := service.NewLocalizer("en")
	require.NoError(t, err)

	f := &routerFixture{
		store:          store,
		tg:             &fakeTelegram{},
		completer:      &fakeCompleter{},
		captioner:      &fakeCaptioner{caption: "a dog on a beach"},
		transcriber:    &fakeTranscriber{transcript: "spoken words"},
		artist:         &fakeArtist{result: &art.Result{OK: true, Data: []byte("png-bytes")}},
		searcher:       &fakeSearcher{},
		conversational: &fakeConversational{},
	}
	f.router = NewRouter(RouterDeps{
		Tg:        f.tg,
		Store:     store,
		Localizer: localizer,
		Logger:    logger.NewTestLogger(),
		ChatCfg: config.ChatConfig{
			ContextSize:  4000,
			SystemPrompt: testSystemPrompt,
			ImagePrice:   0.002,
			CaptionPrice: 0.02,
		},
		OpenAICfg:      config.OpenAIConfig{MaxTokens: 2000, Price: 0.002},
		Completer:      f.completer,
		Captioner:      f.captioner,
		Transcriber:    f.transcriber,
		Artist:         f.artist,
		Searcher:       f.searcher,
		Conversational: f.conversational,
	})
	return f
}

func textMsg(chatID int64, text string) *telegram.MessageOriginal {
	return &telegram.MessageOriginal{
		Chat: tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 100, LanguageCode: "en"},
		Text: text,
	}
}

func TestRoute_ChatTurn(t *testing.T) {
	f := newRouterFixture(t)
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "Hello, I am Robie.", TotalTokens: 100},
	}

	f.router.Route(context.Background(), textMsg(1, "Hello there"))

	history := f.store.History(1)
	require.Len(t, history, 3)
	assert.Equal(t, chat.System(testSystemPrompt), history[0])
	assert.Equal(t, chat.User("Hello there"), history[1])
	assert.Equal(t, chat.Assistant("Hello, I am Robie."), history[2])

	assert.Equal(t, []string{"Hello, I am Robie."}, f.tg.sentTexts())
	assert.Equal(t, "Hello, I am Robie.", f.store.LastArtifact(1))
	assert.InDelta(t, 100.0/1000*0.002, f.store.Spend(1), 1e-12)
}

func TestRoute_ChatCompletionFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.completer.err = errors.New("boom")

	f.router.Route(context.Background(), textMsg(1, "Hello"))

	texts := f.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "request to openai failed with: boom", texts[0])

	// the failed reply never enters history
	history := f.store.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[1].Role)
	assert.Equal(t, "", f.store.LastArtifact(1))
	assert.Zero(t, f.store.Spend(1))
}

func TestRoute_SpendAccumulatesAcrossTurns(t *testing.T) {
	f := newRouterFixture(t)
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "first", TotalTokens: 500},
		{Role: chat.RoleAssistant, Content: "second", TotalTokens: 1500},
	}

	f.router.Route(context.Background(), textMsg(1, "one"))
	f.router.Route(context.Background(), textMsg(1, "two"))

	assert.InDelta(t, 0.004, f.store.Spend(1), 1e-12)
}

func TestRoute_SamplingTemperature(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), textMsg(1, "hello"))
	assert.InDelta(t, 0.5, f.completer.lastCall(t).temperature, 1e-12)
	assert.Equal(t, 2000, f.completer.lastCall(t).maxTokens)

	require.NoError(t, f.store.SetTemperature(1, 39.1))
	f.router.Route(context.Background(), textMsg(1, "again"))
	assert.InDelta(t, 0.76, f.completer.lastCall(t).temperature, 1e-12)
}

func TestRoute_PhotoWinsOverKeywordText(t *testing.T) {
	f := newRouterFixture(t)

	msg := textMsg(1, "draw a cat")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}

	f.router.Route(context.Background(), msg)

	assert.Equal(t, 1, f.captioner.calls)
	assert.Empty(t, f.artist.subjects)
	assert.Empty(t, f.completer.calls)

	history := f.store.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, chat.User("a dog on a beach"), history[1])
	assert.Equal(t, "a dog on a beach", f.store.LastArtifact(1))
	assert.Equal(t, []string{"a dog on a beach"}, f.tg.sentTexts())
	assert.InDelta(t, 0.02, f.store.Spend(1), 1e-12)
}

func TestRoute_Voice(t *testing.T) {
	f := newRouterFixture(t)

	msg := textMsg(1, "")
	msg.Voice = &tgbotapi.Voice{FileID: "voice1"}

	f.router.Route(context.Background(), msg)

	assert.Equal(t, 1, f.transcriber.calls)
	history := f.store.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, chat.User("spoken words"), history[1])
	assert.Equal(t, "spoken words", f.store.LastArtifact(1))
	assert.Equal(t, []string{"spoken words"}, f.tg.sentTexts())
	assert.Zero(t, f.store.Spend(1))
}

func TestRoute_VoiceEmptyTranscriptIsSilent(t *testing.T) {
	f := newRouterFixture(t)
	f.transcriber.transcript = ""

	msg := textMsg(1, "")
	msg.Voice = &tgbotapi.Voice{FileID: "voice1"}

	f.router.Route(context.Background(), msg)

	assert.Empty(t, f.tg.sentTexts())
	assert.Len(t, f.store.History(1), 1)
}

func TestRoute_EmptyMessageOnlySeedsHistory(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), textMsg(1, ""))

	history := f.store.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, chat.System(testSystemPrompt), history[0])
	assert.Empty(t, f.tg.sentTexts())
}

func TestRoute_DrawWithSubject(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), textMsg(1, "draw a cat"))

	require.Len(t, f.artist.subjects, 1)
	assert.Equal(t, " a cat", f.artist.subjects[0])
	assert.Equal(t, "draw a cat", f.store.LastArtifact(1))

	photos := f.tg.sentPhotos()
	require.Len(t, photos, 1)
	file, ok := photos[0].Photo.(telegram.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "art.png", file.Name)
	assert.Equal(t, []byte("png-bytes"), file.Bytes)
	assert.InDelta(t, 0.002, f.store.Spend(1), 1e-12)
}

func TestRoute_BareDrawReusesLastArtifact(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.store.SetLastArtifact(1, "a red fox, child"))

	f.router.Route(context.Background(), textMsg(1, "draw"))

	require.Len(t, f.artist.subjects, 1)
	assert.Equal(t, "a red fox, ", f.artist.subjects[0])
	// bridging does not overwrite the artifact it reads
	assert.Equal(t, "a red fox, child", f.store.LastArtifact(1))
}

func TestRoute_BareDrawWithoutArtifactIsSilent(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), textMsg(1, "draw"))

	assert.Empty(t, f.artist.subjects)
	assert.Empty(t, f.tg.sentTexts())
	assert.Empty(t, f.tg.sentPhotos())
}

func TestRoute_PaintExpandsSubject(t *testing.T) {
	f := newRouterFixture(t)
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "A breathtaking fox in morning mist", TotalTokens: 50},
	}

	f.router.Route(context.Background(), textMsg(1, "paint a fox"))

	call := f.completer.lastCall(t)
	require.Len(t, call.messages, 1)
	assert.Contains(t, call.messages[0].Content, "a fox")
	assert.Contains(t, call.messages[0].Content, "image description")

	require.Len(t, f.artist.subjects, 1)
	assert.Equal(t, "A breathtaking fox in morning mist", f.artist.subjects[0])

	texts := f.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "I rephrased your description as")
	assert.Contains(t, texts[0], "A breathtaking fox in morning mist")
	assert.Len(t, f.tg.sentPhotos(), 1)
}

func TestRoute_BarePaintSkipsExpansionForPlainArtifact(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.store.SetLastArtifact(1, "a quiet harbor at dusk"))

	f.router.Route(context.Background(), textMsg(1, "paint"))

	// the reused artifact carries no paint prefix, so the subject goes
	// straight to generation
	assert.Empty(t, f.completer.calls)
	require.Len(t, f.artist.subjects, 1)
	assert.Equal(t, "a quiet harbor at dusk", f.artist.subjects[0])
	assert.Len(t, f.tg.sentPhotos(), 1)
}

func TestRoute_ArtFailureReportsStatus(t *testing.T) {
	f := newRouterFixture(t)
	f.artist.result = &art.Result{OK: false, Status: "Stability AI error: invalid_prompts"}

	f.router.Route(context.Background(), textMsg(1, "draw a cat"))

	assert.Empty(t, f.tg.sentPhotos())
	texts := f.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Stability AI error: invalid_prompts", texts[0])
	assert.Zero(t, f.store.Spend(1))
}

func TestRoute_WebSearchInjectsSnippetAndRestoresHistory(t *testing.T) {
	f := newRouterFixture(t)
	f.searcher.snippet = "The Eiffel Tower is 330 metres tall."
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "It is 330 metres.", TotalTokens: 40},
	}

	f.router.Route(context.Background(), textMsg(1, "google height of the Eiffel Tower"))

	require.Len(t, f.searcher.queries, 1)
	assert.Equal(t, "height of the Eiffel Tower", f.searcher.queries[0])

	// the completion saw the snippet as ephemeral context
	call := f.completer.lastCall(t)
	var sawSnippet bool
	for _, m := range call.messages {
		if m.Content == "The Eiffel Tower is 330 metres tall." {
			sawSnippet = true
		}
	}
	assert.True(t, sawSnippet)

	assert.Equal(t, []string{"It is 330 metres."}, f.tg.sentTexts())
	assert.Equal(t, "It is 330 metres.", f.store.LastArtifact(1))

	// the search turn leaves no trace in history
	history := f.store.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, chat.System(testSystemPrompt), history[0])
}

func TestRoute_WebSearchFallsBackToLastUserMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.searcher.snippet = "Dogs are domesticated wolves."
	require.NoError(t, f.store.Append(1,
		chat.System(testSystemPrompt),
		chat.User("cats"),
		chat.Assistant("about cats"),
		chat.User("dogs"),
		chat.Assistant("about dogs"),
	))

	f.router.Route(context.Background(), textMsg(1, "google"))

	require.Len(t, f.searcher.queries, 1)
	assert.Equal(t, "dogs", f.searcher.queries[0])
}

func TestRoute_WebSearchNoAnswer(t *testing.T) {
	f := newRouterFixture(t)
	f.searcher.snippet = ""

	f.router.Route(context.Background(), textMsg(1, "google something obscure"))

	assert.Equal(t, []string{"I don't know what you mean"}, f.tg.sentTexts())
	assert.Empty(t, f.completer.calls)
}

func TestRoute_WebSearchNoQueryAtAll(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), textMsg(1, "google"))

	assert.Empty(t, f.searcher.queries)
	assert.Equal(t, []string{"I don't know what you mean"}, f.tg.sentTexts())
}

func TestRoute_ConversationalSearch(t *testing.T) {
	f := newRouterFixture(t)
	f.conversational.reply = "See **Paris** at [wikipedia](https://en.wikipedia.org/wiki/Paris)"

	f.router.Route(context.Background(), textMsg(1, "bing tell me about Paris"))

	require.Len(t, f.conversational.queries, 1)
	assert.Equal(t, "tell me about Paris", f.conversational.queries[0])

	last, ok := f.tg.lastText()
	require.True(t, ok)
	assert.Equal(t, "See <b>Paris</b> at <a href='https://en.wikipedia.org/wiki/Paris'>wikipedia</a>", last.Text)
	assert.Equal(t, telegram.ModeHTML, last.ParseMode)

	// history and the artifact keep the plain variant
	plain := "See Paris at [wikipedia](https://en.wikipedia.org/wiki/Paris)"
	assert.Equal(t, plain, f.store.LastArtifact(1))
	history := f.store.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, chat.Assistant(plain), history[1])
}

func TestRoute_ConversationalSearchEmptyReply(t *testing.T) {
	f := newRouterFixture(t)
	f.conversational.reply = ""

	f.router.Route(context.Background(), textMsg(1, "bing anything"))

	assert.Equal(t, []string{"I don't know what you mean"}, f.tg.sentTexts())
}

func TestRoute_KeywordRemainderIgnoresLeadingWhitespace(t *testing.T) {
	f := newRouterFixture(t)
	f.searcher.snippet = "snippet"
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "answer", TotalTokens: 10},
	}

	f.router.Route(context.Background(), textMsg(1, "  google cats"))

	require.Len(t, f.searcher.queries, 1)
	assert.Equal(t, "cats", f.searcher.queries[0])
}

func TestRoute_KeywordsAreCaseInsensitive(t *testing.T) {
	f := newRouterFixture(t)
	f.searcher.snippet = "snippet"
	f.completer.responses = []*ai.Completion{
		{Role: chat.RoleAssistant, Content: "answer", TotalTokens: 10},
	}

	f.router.Route(context.Background(), textMsg(1, "Google Eiffel"))

	require.Len(t, f.searcher.queries, 1)
	assert.Equal(t, "Eiffel", f.searcher.queries[0])
}

func TestRoute_HistoryTrimmedBeforeDispatch(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.store.Append(1,
		chat.System(testSystemPrompt),
		chat.User(strings.Repeat("a", 5000)),
		chat.Assistant("short"),
	))

	f.router.Route(context.Background(), textMsg(1, "hello"))

	call := f.completer.lastCall(t)
	for _, m := range call.messages[1:] {
		assert.LessOrEqual(t, len(m.Content), 4000)
	}
}
