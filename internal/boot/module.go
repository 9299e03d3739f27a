package boot

import (
	"context"

	"github.com/daarion/roomsync/internal/bootstrap"
	"github.com/daarion/roomsync/internal/bus"
	"github.com/daarion/roomsync/internal/config"
	"github.com/daarion/roomsync/internal/engine"
	"github.com/daarion/roomsync/internal/lock"
	"github.com/daarion/roomsync/internal/logging"
	"github.com/daarion/roomsync/internal/matrix"
	"github.com/daarion/roomsync/internal/room"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the sync daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("roomsync",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideResolver,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	slug := p.Config.Room.Slug
	return logging.New(room.LogPath(slug), slug, logging.ParseLevel(p.Config.Logging.Level))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	slug := p.Config.Room.Slug
	if err := room.EnsureDir(slug); err != nil {
		return nil, err
	}
	logger.Info("acquiring room lock", zap.String("room", slug))
	l, err := lock.Acquire(room.Dir(slug))
	if err != nil {
		return nil, err
	}
	logger.Info("room lock acquired")
	return l, nil
}

func provideResolver(p Params) *bootstrap.Resolver {
	return bootstrap.NewResolver(p.Config.Bootstrap.URL)
}

func provideEngine(p Params, resolver *bootstrap.Resolver, b *bus.Bus, logger *zap.Logger) *engine.Engine {
	return engine.New(engine.Options{
		Slug:     p.Config.Room.Slug,
		Token:    p.Config.Bootstrap.Token,
		Resolver: resolver,
		Dial: func(sess *room.Session) (engine.Conversation, error) {
			return matrix.NewAdapter(sess, b, logger)
		},
		Bus:           b,
		Logger:        logger,
		HistoryLimit:  p.Config.Room.HistoryLimit,
		AutoReconnect: p.Config.Sync.AutoReconnect,
	})
}

func registerLifecycle(lc fx.Lifecycle, eng *engine.Engine, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Connect in the background so startup is not blocked on the
			// network; failures surface through the status machine.
			go func() {
				if err := eng.Initialize(context.Background()); err != nil {
					logger.Error("initialization failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			eng.Teardown()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
