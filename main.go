package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"funnelgram/bot"
	"funnelgram/bot/broadcast"
	"funnelgram/bot/funnel"
	"funnelgram/entity"
	"funnelgram/impl/core"
	"funnelgram/internal/config"
	repository "funnelgram/internal/database"
	"funnelgram/internal/http-server/api"
	"funnelgram/internal/lib/logger"
	"funnelgram/internal/lib/sl"
	"funnelgram/internal/service/actions"
	"funnelgram/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	lg.Info("starting funnelgram", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	handler := core.New(lg)
	handler.SetAuthKey(conf.Listen.ApiKey)

	db, err := repository.NewMongoClient(conf, lg)
	if err != nil {
		lg.With(
			sl.Err(err),
		).Error("mongo client")
	}
	if db != nil {
		handler.SetRepository(db)
		lg.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("user", conf.Mongo.User),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	}

	hub := ws.NewHub(lg)
	go hub.Run()

	if conf.Telegram.Enabled && db != nil {
		tgBot, err := bot.NewTgBot(conf.Telegram.BotID, conf.Telegram.BotName, conf.Telegram.ApiKey, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", sl.Err(err))
		} else {
			matcher := funnel.NewMatcher(db, db, lg)
			handler.SetMatcher(matcher)

			executor := funnel.NewExecutor(db, tgBot, actions.New(lg),
				time.Duration(conf.Engine.CallTimeoutSec)*time.Second, lg)

			engine := funnel.NewEngine(db, db, db, matcher, executor, tgBot, funnel.Options{
				RestartCommand:   conf.Engine.RestartCommand,
				CancelCommand:    conf.Engine.CancelCommand,
				FallbackText:     conf.Engine.FallbackText,
				MaxStepsPerEvent: conf.Engine.MaxStepsPerEvent,
				DedupeWindow:     conf.Engine.DedupeWindow,
			}, lg)
			tgBot.SetEngine(engine)

			go wakeDelayed(conf.Telegram.BotID, db, engine, lg)

			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")

			go func() {
				if err := tgBot.Start(); err != nil {
					lg.Error("telegram bot error", sl.Err(err))
				}
			}()

			processor := broadcast.NewProcessor(db, db, tgBot, broadcast.Config{
				Workers:       conf.Broadcast.Workers,
				RatePerSecond: conf.Broadcast.RatePerSecond,
				RetryLimit:    conf.Broadcast.RetryLimit,
				FailurePause:  conf.Broadcast.FailurePause,
				SchedulerTick: time.Duration(conf.Broadcast.SchedulerTick) * time.Second,
				PersistEvery:  conf.Broadcast.PersistEvery,
			}, lg)
			processor.SetProgressSink(hub)
			handler.SetBroadcaster(processor)
			go processor.RunScheduler(context.Background())

			lg.Info("broadcast processor initialized")
		}
	}

	// *** blocking start with http server ***
	err = api.New(conf, lg, handler, hub)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Error("service stopped")
}

// wakeDelayed re-arms delay steps that came due while the process was down
// and keeps sweeping for due ones afterwards. Wake events are idempotent:
// the engine ignores them unless the state is actually parked on a delay.
func wakeDelayed(botID string, db *repository.MongoDB, engine *funnel.Engine, lg *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		states, err := db.ListDelayed(context.Background(), botID, time.Now())
		if err != nil {
			lg.Error("list delayed states", sl.Err(err))
		}
		for i := range states {
			st := states[i]
			err = engine.HandleEvent(context.Background(), &entity.InboundEvent{
				BotID:  st.BotID,
				UserID: st.UserID,
				ChatID: st.ChatID,
				Type:   entity.EventWake,
			})
			if err != nil {
				lg.With(
					slog.Int64("user_id", st.UserID),
					sl.Err(err),
				).Error("wake delayed state")
			}
		}
		<-ticker.C
	}
}
