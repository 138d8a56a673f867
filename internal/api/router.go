package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

type Dependencies struct {
	DB          database.Pinger
	Registry    *registry.Registry
	Recognition *service.RecognitionService
	Attendance  *service.AttendanceService
	Registries  *service.RegistryService
	Producer    *stream.Producer
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
}

// healthPinger bounds readiness pings with the database health check timeout.
type healthPinger struct {
	db database.Pinger
}

func (p healthPinger) Ping(ctx context.Context) error {
	return database.HealthCheck(ctx, p.db)
}

type Router struct {
	app          *fiber.App
	logger       *slog.Logger
	deps         *Dependencies
	cancelHub    context.CancelFunc
	cancelStream context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Rollcall API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + middleware.HeaderSubjectID,
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints
	var (
		db    handler.Pinger
		sizer func() handler.RegistrySizer
	)
	if r.deps != nil {
		if r.deps.DB != nil {
			db = healthPinger{r.deps.DB}
		}
		if r.deps.Registry != nil {
			sizer = func() handler.RegistrySizer { return r.deps.Registry.Snapshot() }
		}
	}
	healthHandler := handler.NewHealthHandler(db, sizer)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	if r.deps.Metrics != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics.Handler()))
	}

	v1 := r.app.Group("/v1")
	v1.Use(middleware.Subject(false))
	requireSubject := middleware.Subject(true)

	// Recognition
	identifyHandler := handler.NewIdentifyHandler(r.deps.Recognition, r.logger)
	v1.Post("/identify", identifyHandler.Identify)

	streamCtx, streamCancel := context.WithCancel(context.Background())
	r.cancelStream = streamCancel
	streamHandler := handler.NewStreamHandler(streamCtx, r.deps.Producer, r.deps.Recognition.StreamObserver, r.logger)
	v1.Get("/stream", requireSubject, streamHandler.Stream)

	// Attendance
	attendanceHandler := handler.NewAttendanceHandler(r.deps.Attendance, r.logger)
	v1.Post("/attendance/mark", requireSubject, attendanceHandler.Mark)

	// Registry
	registryHandler := handler.NewRegistryHandler(r.deps.Registries, r.logger)
	v1.Get("/registry", registryHandler.List)
	v1.Post("/registry/reload", registryHandler.Reload)

	// WebSocket endpoint
	if r.deps.Hub != nil {
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.deps.Hub.Run(hubCtx)

		v1.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop running stream sessions so their cameras are released
	if r.cancelStream != nil {
		r.cancelStream()
	}

	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	return r.app.Shutdown()
}
