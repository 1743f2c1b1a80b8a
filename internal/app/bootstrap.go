package app

import (
	"context"
	"time"

	"client/internal/app/capture"
	"client/internal/app/delivery"
	"client/internal/app/health"
	"client/internal/app/session"
	"client/internal/app/timeline"
	"client/internal/config"
	"client/internal/gateways/realtime"
	"client/internal/gateways/websocket"
	"client/internal/providers/minio"
	"client/internal/providers/redis"
	"client/internal/providers/remote"
	"client/internal/router"
	"client/internal/utils"

	"go.uber.org/zap"
)

const previewRoute = "/api/capture/previews"

type Application struct {
	Router   *router.Router
	Events   *utils.EventBus
	Sessions session.Service
	Timeline *timeline.Store
	Capture  *capture.Controller
	Pipeline *delivery.Pipeline
	Realtime *realtime.Channel

	redis *redis.RedisProvider
}

// Bootstrap wires the engine. Background workers stop when ctx is done.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eventBus := utils.NewEventBus(logger, 256)
	go eventBus.Run(ctx)

	var sessionService session.Service
	remoteClient := remote.NewClient(remote.Options{
		BaseURL:     cfg.APIBaseURL,
		ReadTimeout: cfg.ReadTimeout,
		SendTimeout: cfg.SendTimeout,
		Tokens:      remote.TokenFunc(func() string { return sessionService.Token() }),
	}, logger)
	sessionService = session.NewService(remoteClient, cfg.APIPrefix, eventBus, logger)

	var (
		redisProvider *redis.RedisProvider
		snapshots     timeline.SnapshotCache
	)
	if cfg.RedisURL != "" {
		redisProvider = redis.NewRedisProvider(cfg.RedisURL, logger, cfg.RedisTTL)
		snapshots = redis.NewTimelineCache(redisProvider)
	}

	store := timeline.NewStore(timeline.NewRemoteSource(remoteClient, cfg.APIPrefix), snapshots, eventBus, logger)
	eventBus.Subscribe(utils.EventNewMessage, store.HandleEvent)

	memoryPreviews := capture.NewMemoryPreviews(previewRoute)
	var previews capture.PreviewStore = memoryPreviews
	if cfg.MinioURL != "" {
		minioProvider, err := minio.NewMinioProvider(cfg, logger)
		if err != nil {
			logger.Warn("Failed to initialize MinIO provider, keeping previews in memory", zap.Error(err))
		} else {
			previews = minioProvider
			memoryPreviews = nil
			go minioProvider.StartSweeper(ctx, 15*time.Minute, time.Hour)
		}
	}

	var device capture.Device
	if cfg.RecorderCommand != "" {
		device = capture.NewCommandDevice(cfg.RecorderCommand, cfg.RecorderTypes, cfg.RecorderTimeslice)
	}
	controller := capture.NewController(ctx, device, previews, capture.Options{
		PreferredTypes: cfg.RecorderTypes,
		MaxSize:        cfg.MaxFileSize,
		Events:         eventBus,
	}, logger)

	pipeline := delivery.NewPipeline(remoteClient, sessionService, store, eventBus, delivery.Options{
		Prefix:       cfg.APIPrefix,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		RefetchDelay: cfg.RefetchDelay,
		Optimistic:   true,
	}, logger)

	var dialer realtime.Dialer
	switch cfg.PushProtocol {
	case "websocket":
		dialer = realtime.NewWebSocketDialer(cfg.SocketURL, logger)
	case "socketio2":
		dialer = realtime.NewLegacySocketIODialer(cfg.SocketURL, logger)
	default:
		dialer = realtime.NewSocketIODialer(cfg.SocketURL, logger)
	}
	channel := realtime.NewChannel(dialer, eventBus, cfg.ReconnectDelay, logger)

	// Started in this order, ended in reverse: the channel goes down first,
	// the timeline is cleared last.
	sessionService.AddHook(store)
	sessionService.AddHook(pipeline)
	sessionService.AddHook(channel)

	hub := websocket.NewHub(logger, cfg.FrontendURLs)
	go hub.Run(ctx)
	eventBus.SubscribeAll(hub.Forward)

	checker := &utils.HealthChecker{
		Remote: remoteClient,
		Realtime: func() (bool, string) {
			s := channel.State()
			return s == realtime.Connected, s.String()
		},
	}
	if redisProvider != nil {
		checker.Redis = redisProvider
	}

	r := router.NewRouter(logger, cfg.FrontendURLs)
	r.RegisterHealthRoutes(health.NewHandler(checker))
	r.RegisterWebSocketRoutes(hub)
	r.RegisterSessionRoutes(session.NewHandler(sessionService))
	r.RegisterTimelineRoutes(timeline.NewHandler(store, cfg.MediaBaseURL))
	r.RegisterCaptureRoutes(capture.NewHandler(controller, memoryPreviews, cfg.MaxFileSize))
	r.RegisterDeliveryRoutes(delivery.NewHandler(pipeline, controller))

	return &Application{
		Router:   r,
		Events:   eventBus,
		Sessions: sessionService,
		Timeline: store,
		Capture:  controller,
		Pipeline: pipeline,
		Realtime: channel,
		redis:    redisProvider,
	}, nil
}

// Shutdown ends the session locally, waits for pending refetches and
// releases providers.
func (a *Application) Shutdown(ctx context.Context) {
	a.Capture.Clear(ctx)
	a.Sessions.Close(ctx)
	a.Pipeline.Wait()
	if a.redis != nil {
		a.redis.Close()
	}
}
