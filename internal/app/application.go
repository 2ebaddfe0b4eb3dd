package app

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/snusnumrick/robie/internal/app/di"
	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/core"
	"github.com/snusnumrick/robie/internal/logger"
)

type Application struct {
	Logger logger.Logger
	cfg    *config.Config
	bot    *core.Bot
	di     *di.Container
	ctx    context.Context
	cancel context.CancelFunc
}

func New() (*Application, error) {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		cancel()
		return nil, err
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	container.Logger.Info("DI Container created")

	botInstance := core.NewBot(
		container.BotClient,
		container.Router,
		container.Queue,
		cfg.Telegram(),
		container.Logger,
	)
	container.Logger.Info("Bot instance created")

	return &Application{
		cfg:    cfg,
		bot:    botInstance,
		di:     container,
		Logger: container.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (a *Application) Start() error {
	a.Logger.Info("Starting application")
	return a.bot.Start(a.ctx)
}

func (a *Application) WaitForShutdown() {
	<-a.ctx.Done()
	a.di.Queue.Wait()
	if err := a.di.DB.Close(); err != nil {
		a.Logger.WithError(err).Error("Failed to close database")
	}
	a.Logger.Info("Application stopped")
}
