package di

import (
	"context"
	"net/http"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/snusnumrick/robie/internal/ai"
	"github.com/snusnumrick/robie/internal/art"
	"github.com/snusnumrick/robie/internal/chat"
	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/core"
	"github.com/snusnumrick/robie/internal/database"
	"github.com/snusnumrick/robie/internal/logger"
	"github.com/snusnumrick/robie/internal/network"
	"github.com/snusnumrick/robie/internal/queue"
	"github.com/snusnumrick/robie/internal/search"
	"github.com/snusnumrick/robie/internal/service"
	"github.com/snusnumrick/robie/internal/speech"
	"github.com/snusnumrick/robie/internal/telegram"
	"github.com/snusnumrick/robie/internal/vision"
)

type Container struct {
	BotClient  telegram.Client
	Logger     logger.Logger
	DB         database.Database
	Cfg        *config.Config
	Store      *chat.Store
	Queue      *queue.Queue
	Router     *core.Router
	HttpClient *http.Client
	Localizer  *service.Localizer
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logCfg := cfg.Log()
	l := logger.NewLogrusLogger(&logCfg)

	if cfg.OpenAI().Key == "" {
		l.Warn("OpenAI key is not set, chat completion will fail")
	}

	db, err := database.NewSQLiteDB(cfg.GetDatabaseDSN(), l)
	if err != nil {
		return nil, err
	}

	store := chat.NewStore(db, l)

	localizer, err := service.NewLocalizer(cfg.Global().InterfaceLanguage)
	if err != nil {
		l.WithError(err).Fatal("Error create localizer")
	}

	container := &Container{
		Logger:    l,
		DB:        db,
		Cfg:       cfg,
		Store:     store,
		Queue:     queue.New(ctx, l),
		Localizer: localizer,
	}

	httpCfg := network.NewDefaultHTTPClientConfig(cfg.HTTP())
	container.HttpClient = network.SetupHTTPClient(httpCfg, l)

	searchHTTPCfg := network.NewSearchHTTPClientConfig(cfg.HTTP())
	searchHTTPClient := network.SetupHTTPClient(searchHTTPCfg, l)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram().Token)
	if err != nil {
		l.WithError(err).Fatal("Bot API client initialization error")
	}
	l.Info("Bot API initialized")

	container.BotClient = telegram.NewBotClient(api, l)

	container.Router = core.NewRouter(core.RouterDeps{
		Tg:             container.BotClient,
		Store:          store,
		Localizer:      localizer,
		Logger:         l,
		ChatCfg:        cfg.Chat(),
		OpenAICfg:      cfg.OpenAI(),
		Completer:      ai.NewClient(container.HttpClient, cfg.OpenAI(), l),
		Captioner:      vision.NewClient(container.HttpClient, cfg.Replicate(), l),
		Transcriber:    speech.NewNoopTranscriber(l),
		Artist:         art.NewClient(container.HttpClient, cfg.Stability(), l),
		Searcher:       search.NewGoogleSearch(searchHTTPClient, l),
		Conversational: search.NewBingChat(searchHTTPClient, cfg.Bing(), l),
	})

	return container, nil
}
