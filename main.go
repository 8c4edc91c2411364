package main

import (
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/okravets/sealchat/internal/config"
	"github.com/okravets/sealchat/internal/email"
	"github.com/okravets/sealchat/internal/session"
	"github.com/okravets/sealchat/internal/store/sqlstore"
	"github.com/okravets/sealchat/internal/ws"
)

var (
	addr    = flag.String("addr", "", "http service address (overrides ADDR)")
	envFile = flag.String("env", "", "path to env file")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// Initialize Database
	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	// Nobody is connected yet, so nobody may be marked active.
	if err := store.ResetPresence(); err != nil {
		log.Fatal(err)
	}

	var notifier session.AdminNotifier
	if cfg.SMTPFrom != "" {
		notifier = email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	// Initialize coordinator and WebSocket hub
	coordinator := session.NewCoordinator(store, notifier)
	hub := ws.NewHub(coordinator)
	coordinator.SetTransport(hub)
	go hub.Run()

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	// WebSocket Endpoint
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	// Serve index.html
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, cfg.StaticDir+"/index.html")
	})

	// Serve static files with cache-busting headers for development
	r.PathPrefix("/").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".css") || strings.HasSuffix(r.URL.Path, ".js") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}
		http.FileServer(http.Dir(cfg.StaticDir)).ServeHTTP(w, r)
	}))

	log.Println("Starting server on", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, r))
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
