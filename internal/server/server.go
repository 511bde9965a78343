package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"
	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/pulse/internal/config"
	"github.com/nfrund/pulse/internal/database"
	"github.com/nfrund/pulse/internal/handlers"
	"github.com/nfrund/pulse/internal/logging"
	"github.com/nfrund/pulse/internal/media"
	"github.com/nfrund/pulse/internal/messaging"
	"github.com/nfrund/pulse/internal/middleware"
	"github.com/nfrund/pulse/internal/presence"
	"github.com/nfrund/pulse/internal/pubsub"
	"github.com/nfrund/pulse/internal/ws"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	DB  *surrealdb.DB
	Cfg *config.Config

	PubSub   *pubsub.WatermillBridge
	Registry *presence.Registry
	Bridge   *ws.Bridge
	Router   *ws.Router

	userStore      *database.UserStore
	messageStore   *database.MessageStore
	mediaStore     *media.Store
	messagingSvc   *messaging.Service
	authHandler    *handlers.AuthHandler
	messageHandler *handlers.MessageHandler
	mediaHandler   *handlers.MediaHandler

	routerCancel context.CancelFunc
}

// New creates a new Server instance with every collaborator wired.
func New() *Server {
	logging.New()
	cfg := config.New()

	db, err := database.NewDB(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	userStore := database.NewUserStore(db, cfg.DBNs, cfg.DBDb)
	messageStore := database.NewMessageStore(db)
	mediaStore := media.NewStore(afero.NewOsFs(), cfg.MediaRoot)

	bus := pubsub.NewWatermillBridge()

	// The registry is owned by the bridge; the router only reads it.
	registry := presence.NewRegistry()
	bridge := ws.NewBridge(registry, bus)
	go bridge.Run()

	router := ws.NewRouter(registry)
	routerCtx, routerCancel := context.WithCancel(context.Background())
	if err := router.Attach(routerCtx, bus); err != nil {
		slog.Error("Failed to attach fan-out router", "error", err)
		os.Exit(1)
	}

	messagingSvc := messaging.NewService(messageStore, userStore, mediaStore, bus)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(middleware.Logger)

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(store))

	return &Server{
		E:              e,
		DB:             db,
		Cfg:            cfg,
		PubSub:         bus,
		Registry:       registry,
		Bridge:         bridge,
		Router:         router,
		userStore:      userStore,
		messageStore:   messageStore,
		mediaStore:     mediaStore,
		messagingSvc:   messagingSvc,
		authHandler:    handlers.NewAuthHandler(userStore, userStore),
		messageHandler: handlers.NewMessageHandler(messagingSvc),
		mediaHandler:   handlers.NewMediaHandler(mediaStore),
		routerCancel:   routerCancel,
	}
}

// UserStore is a getter for the server's user store, useful for testing.
func (s *Server) UserStore() *database.UserStore {
	return s.userStore
}

// MessagingService is a getter for the messaging service, useful for testing.
func (s *Server) MessagingService() *messaging.Service {
	return s.messagingSvc
}
