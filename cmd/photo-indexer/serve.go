package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"slices"
	"syscall"
	"time"

	"photo-indexer/config"
	"photo-indexer/internal/api/handlers"
	"photo-indexer/internal/api/middleware"
	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/integrations/mqtt"
	"photo-indexer/internal/server/sse"
	"photo-indexer/internal/services"
	"photo-indexer/internal/services/rescan"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API over the index. The server streams pipeline events via
SSE, serves the original photos below the media URL and, when a schedule is
configured, rescans the library periodically.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (0 = config value)")
	serveCmd.Flags().String("host", "", "Host to bind to (empty = config value)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Server.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := sse.NewHub()
	go hub.Run()
	defer hub.Stop()

	bridge := startMQTT(a)
	defer bridge.Close()

	notifier := services.NewNotifierService(hub)
	if bridge != nil {
		notifier.Add(bridge.publisher)
	}

	// Ohne Objektdetektor bleibt die API lesbar, nur Scans sind nicht möglich
	var scanner handlers.ScanTrigger
	var status handlers.StatusSource
	ix, detectors, err := buildIndexer(ctx, a, notifier)
	if err != nil {
		log.Warnf("Scanning disabled: %v", err)
	} else {
		defer detectors.Close()

		rescanService := rescan.NewRescanService(ix, a.cfg.Scanner.RootDir, rescan.Schedule{
			Every: time.Duration(a.cfg.Scanner.ScheduleMinutes) * time.Minute,
			Cron:  a.cfg.Scanner.ScheduleCron,
		})
		if err := rescanService.Start(); err != nil {
			return err
		}
		defer rescanService.Stop()

		if bridge != nil {
			registerScanCommand(bridge.client, rescanService)
		}
		scanner = rescanService
		status = ix
	}

	translator, err := middleware.NewTranslator(middleware.I18nConfig{DefaultLanguage: a.cfg.I18n.DefaultLanguage})
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}

	router := newRouter(a.cfg, translator)
	api := router.Group("/api")
	apiHandler := handlers.NewAPIHandler(a.repo, scanner, status, a.cfg.Scanner.RootDir)
	apiHandler.SetEventClients(hub)
	apiHandler.RegisterRoutes(api)
	handlers.NewEventHandler(hub).RegisterRoutes(api)

	mediaURL := path.Clean("/" + a.cfg.Server.MediaURL)
	router.Static(mediaURL, a.cfg.Scanner.RootDir)
	log.Infof("Serving photos from %s under %s", a.cfg.Scanner.RootDir, mediaURL)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		// SSE-Verbindungen zuerst schließen, sonst wartet Shutdown auf sie
		hub.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error during shutdown: %v", err)
		}
	}()

	log.Infof("Starting server on http://%s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func newRouter(cfg *config.Config, translator *middleware.Translator) *gin.Engine {
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(log.StandardLogger().Writer()), gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept-Language"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.Server.CORSOrigins) == 0 || slices.Contains(cfg.Server.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 365 * 24 * 3600, HttpOnly: true})
	router.Use(sessions.Sessions("photo_indexer", store))
	router.Use(middleware.I18n(translator))

	return router
}

// registerScanCommand startet einen Scan bei einer Nachricht auf <prefix>/command/scan
func registerScanCommand(client *mqtt.Client, svc *rescan.RescanService) {
	topic := client.Topic("command", "scan")
	client.RegisterHandler(mqtt.MessageHandlerFunc(func(t string, _ []byte) {
		if t != topic {
			return
		}
		err := svc.Trigger()
		switch {
		case errors.Is(err, indexer.ErrScanInProgress):
			log.Info("MQTT scan command ignored, scan already running")
		case err != nil:
			log.Errorf("MQTT scan command failed: %v", err)
		default:
			log.Info("Scan triggered via MQTT")
		}
	}))
}
