package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"image-editor-server/assets"
	"image-editor-server/core"
	"image-editor-server/editor"
	"image-editor-server/editor/history"
	"image-editor-server/editor/interact"
	"image-editor-server/handlers/api/images"
	"image-editor-server/handlers/api/sessions"
	"image-editor-server/handlers/api/upload"
	"image-editor-server/handlers/websocket"
	"image-editor-server/media"
	authMiddleware "image-editor-server/middleware"
	"image-editor-server/remote"
	"image-editor-server/stores"
)

type server struct {
	store    core.Store
	catalog  *assets.Catalog
	registry *editor.Registry
	tokens   *authMiddleware.Tokens
	remote   *remote.Client
	hub      *websocket.Hub
	config   editor.Config
	upload   upload.Config

	// imageOrigins are the only http(s) origins editor images are fetched from.
	imageOrigins []string
}

func setupRouter(s *server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(authMiddleware.RedactToken)
	r.Use(middleware.Logger)

	corsOptions := cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}

			parsed, err := url.Parse(origin)
			if err != nil {
				return false
			}

			switch parsed.Scheme {
			case "http", "https":
				switch parsed.Hostname() {
				case "localhost", "127.0.0.1", "[::1]":
					return true
				}
			}

			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(cors.Handler(corsOptions))

	api := &sessions.API{
		Store:    s.store,
		Registry: s.registry,
		Catalog:  s.catalog,
		Config:   s.config,
		Deps: editor.Deps{
			Loader:  media.NewLoader(s.store, nil).Allow(s.imageOrigins...),
			Remover: s.remote,
		},
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", upload.HandleUpload(s.store, s.remote, s.tokens, s.upload))
		r.Get("/images/{id}", images.HandleGet(s.store))
		r.Get("/assets", sessions.HandleListAssets(s.catalog))
		r.Get("/assets/{name}", sessions.HandleAssetFile())
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			viewers := 0
			for _, n := range s.hub.Viewers() {
				viewers += n
			}
			render.JSON(w, r, map[string]int{
				"open_editors": s.registry.Len(),
				"viewers":      viewers,
			})
		})

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Use(s.tokens.RequireSession)

			r.Get("/", api.HandleGetSession())
			r.Delete("/", api.HandleDelete())
			r.Post("/editor", api.HandleOpen())
			r.Delete("/editor", api.HandleClose())

			r.Get("/state", api.HandleState())
			r.Get("/document", api.HandleDocument())
			r.Get("/history", api.HandleHistory())
			r.Post("/undo", api.HandleUndo())
			r.Post("/redo", api.HandleRedo())

			r.Put("/adjustments", api.HandleAdjustments())
			r.Put("/tool", api.HandleTool())
			r.Post("/pointer", api.HandlePointer())
			r.Post("/wheel", api.HandleWheel())
			r.Post("/key", api.HandleKey())
			r.Post("/zoom/reset", api.HandleResetZoom())

			r.Put("/selection", api.HandleSelect())
			r.Post("/selection/delete", api.HandleDeleteSelected())
			r.Post("/selection/duplicate", api.HandleDuplicate())
			r.Post("/selection/reorder", api.HandleReorder())
			r.Put("/objects/{objectId}/transform", api.HandleTransform())

			r.Post("/texts", api.HandleAddText())
			r.Post("/texts/{objectId}/edit", api.HandleBeginTextEdit())
			r.Put("/texts/edit", api.HandleCommitTextEdit())
			r.Delete("/texts/edit", api.HandleCancelTextEdit())
			r.Post("/shapes", api.HandleAddShape())

			r.Put("/canvas", api.HandleResize())
			r.Put("/background/color", api.HandleBackgroundColor())
			r.Put("/background/image", api.HandleBackgroundImage())
			r.Delete("/background/image", api.HandleClearBackgroundImage())
			r.Put("/overlay", api.HandleOverlay())
			r.Delete("/overlay", api.HandleRemoveOverlay())
			r.Post("/templates/{name}", api.HandleApplyTemplate())

			r.Get("/mask", api.HandleMask())
			r.Get("/export", api.HandleExport())
			r.Post("/remove-object", api.HandleRemoveObject())
		})
	})

	return r
}

func waitForShutdown(ioo *socketio.Server, registry *editor.Registry) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	registry.CloseAll()
	ioo.Close(nil)
	os.Exit(0)
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Ignoring invalid duration")
		return def
	}
	return d
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Ignoring invalid number")
		return def
	}
	return f
}

func main() {
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	catalog, err := assets.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load asset catalog")
	}

	registry := editor.NewRegistry()
	tokens := authMiddleware.TokensFromEnv()
	remoteConfig := remote.ConfigFromEnv()
	publicBaseURL := os.Getenv("PUBLIC_BASE_URL")
	s := &server{
		store:    stores.GetStore(),
		catalog:  catalog,
		registry: registry,
		tokens:   tokens,
		remote:   remote.NewClient(remoteConfig),
		hub:      websocket.NewHub(registry, tokens),
		config: editor.Config{
			Debounce:   envDuration("HISTORY_DEBOUNCE", history.DefaultDebounce),
			BrushWidth: envFloat("BRUSH_WIDTH", interact.DefaultBrushWidth),
		},
		upload: upload.Config{
			MaxBytes:      int64(envFloat("MAX_UPLOAD_BYTES", media.DefaultMaxBytes)),
			PublicBaseURL: publicBaseURL,
		},
		imageOrigins: append([]string{
			remoteConfig.BackgroundRemovalURL,
			remoteConfig.ObjectRemovalURL,
			publicBaseURL,
		}, strings.Split(os.Getenv("ALLOWED_IMAGE_ORIGINS"), ",")...),
	}

	r := setupRouter(s)
	ioo := s.hub.SetupSocketIO()
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddr, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, registry)
}
