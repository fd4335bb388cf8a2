package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/recera/formflux/cmd/formflux/internal/config"
	"github.com/recera/formflux/pkg/flux"
	"github.com/recera/formflux/pkg/forms"
	"github.com/recera/formflux/pkg/live"
)

// liveServer holds the running serve command's state
type liveServer struct {
	config     *config.Config
	configPath string
	dispatcher *flux.Dispatcher
	store      *forms.Store
	live       *live.Server
	httpServer *http.Server
	watcher    *fsnotify.Watcher
}

func newServeCommand() *cobra.Command {
	var addr string
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live form state server",
		Long: `Starts the FormFlux live server: a WebSocket endpoint that receives
form actions from connected clients, applies them to a shared form
store, and feeds tail sessions. Declared forms come from formflux.json
or formflux.yaml, which is watched and re-applied on change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configDir)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "Directory containing formflux.json or formflux.yaml")

	return cmd
}

func runServe(addr, configDir string) error {
	cfg, configPath, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if cfg.Verbose {
		flux.SetDebugLog(log.Println)
	}

	s := &liveServer{
		config:     cfg,
		configPath: configPath,
		dispatcher: flux.NewDispatcher(),
	}
	s.store = forms.NewStore(s.dispatcher, forms.SubmitterFunc(logSubmission))
	s.live = live.NewServer(s.dispatcher, s.store)
	s.live.SetBasePath(cfg.Server.LivePath)

	s.seedForms(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.LivePath, s.live.HandleWebSocket)
	mux.HandleFunc("/formflux/state", s.handleState)

	s.httpServer = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	// Watch the config file for form declaration changes.
	if configPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer watcher.Close()
		s.watcher = watcher

		if err := watcher.Add(filepath.Dir(configPath)); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		go s.watchConfig()
	}

	// Shut down cleanly on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Serve] Listening on %s (live endpoint %s)", cfg.Server.Addr, cfg.Server.LivePath)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[Serve] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// seedForms applies the config's declared forms to the store
func (s *liveServer) seedForms(cfg *config.Config) {
	for _, f := range cfg.Forms {
		s.store.Seed(f.ID, f.Type, f.Initial)
		log.Printf("[Serve] Seeded form %q (type %q)", f.ID, f.Type)
	}
}

// watchConfig reloads form declarations when the config file changes
func (s *liveServer) watchConfig() {
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	var pendingEvents []fsnotify.Event
	var mu sync.Mutex

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(s.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			mu.Lock()
			pendingEvents = append(pendingEvents, event)
			mu.Unlock()

			// Reset debounce timer
			debounce.Reset(100 * time.Millisecond)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Println("Watcher error:", err)

		case <-debounce.C:
			mu.Lock()
			events := pendingEvents
			pendingEvents = nil
			mu.Unlock()

			if len(events) > 0 {
				s.reloadConfig()
			}
		}
	}
}

func (s *liveServer) reloadConfig() {
	cfg, err := config.LoadFromFile(s.configPath)
	if err != nil {
		log.Printf("[Serve] Config reload failed: %v", err)
		return
	}

	log.Printf("[Serve] Config changed, re-seeding %d declared forms", len(cfg.Forms))
	s.seedForms(cfg)
	s.config = cfg
}

// handleState serves all form snapshots as JSON
func (s *liveServer) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Forms()); err != nil {
		log.Printf("[Serve] Failed to encode state: %v", err)
	}
}

// logSubmission is the server's default submitter: the server has no
// backend of its own, so submissions are recorded in the log.
func logSubmission(sub forms.Submission) error {
	log.Printf("[Serve] Submit form %q (type %q): %d fields", sub.FormID, sub.FormType, len(sub.Data))
	return nil
}
