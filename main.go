package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pointlane/trackedit/internal/api"
	"github.com/pointlane/trackedit/internal/catalog"
	"github.com/pointlane/trackedit/internal/config"
	"github.com/pointlane/trackedit/internal/monitoring"
	"github.com/pointlane/trackedit/internal/session"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "trackedit.db", "Path to the session catalog database")
	configPath = flag.String("config", "", "Path to an editor config JSON file")
	videoDir   = flag.String("videos", "", "Directory to scan for library videos")
)

// autosave periodically exports the active session so a crash loses at
// most one interval of edits.
func autosave(ctx context.Context, manager *session.Manager, cfg *config.EditorConfig) {
	interval := cfg.GetAutosaveInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess, err := manager.Current()
			if err != nil {
				continue
			}
			base := strings.TrimSuffix(filepath.Base(sess.VideoPath), filepath.Ext(sess.VideoPath))
			if base == "" {
				base = sess.ID
			}
			path := filepath.Join(cfg.GetOutputDir(), base+".tracks.json")
			if err := sess.Export(path); err != nil {
				monitoring.Logf("autosave: %v", err)
			}
		}
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyEditorConfig()
	if *configPath != "" {
		loaded, err := config.LoadEditorConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if err := os.MkdirAll(cfg.GetOutputDir(), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	cat, err := catalog.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer cat.Close()
	if err := cat.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate catalog: %v", err)
	}

	manager := session.NewManager()
	frames := session.NewStaticFrameSource()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		autosave(ctx, manager, cfg)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(manager, cat, frames, cfg, *videoDir).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			monitoring.Logf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
}
