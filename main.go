package main

import (
	"Scripter/ai"
	"Scripter/bot"
	"Scripter/core"
	"Scripter/holder"
	"Scripter/lib/sl"
	"Scripter/storage"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		sl.Secret(conf.TelegramApiKey),
	).Info("starting script form bot")

	// Initialize journal based on config
	var journal storage.Journal
	if conf.Mongo.Enabled {
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		var err error
		journal, err = storage.NewMongoJournal(mongoURI, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("user", conf.Mongo.User),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			journal = storage.NewMemoryJournal()
		} else {
			log.Info("using MongoDB journal")
		}
	} else {
		journal = storage.NewMemoryJournal()
		log.Info("using in-memory journal")
	}

	generator := ai.NewScriptGenerator(conf, log)
	log.With(
		slog.String("endpoint", generator.Endpoint()),
		slog.String("search_tool", conf.SearchTool()),
	).Info("script generator ready")
	sessions := holder.NewSessionManager(generator, conf.SearchTool(), journal, log)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}
	tgBot.SetSessions(sessions)
	tgBot.SetJournal(journal)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	tgBot.Stop()

	// cancels in-flight requests and closes the journal
	if err := sessions.Close(); err != nil {
		log.Error("error closing sessions", sl.Err(err))
	}

	log.Info("shutdown complete")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
