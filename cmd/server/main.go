/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the kudo bank server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open SQLite store
  3. Build kudos.Service with signature authenticator and observers
  4. Start nonce sweeper
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: kudos.db)
             Use ":memory:" for in-memory database
  -driver    sqlite3 (cgo, default) or sqlite (pure Go)
  -max-skew  Accepted clock drift for signed requests (default: 5m)
  -origins   Comma-separated CORS origins
  -sweep     Interval for dropping expired replay nonces (default: 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop nonce sweeper
  4. Close database connection
  5. Exit

EXAMPLES:
  ./server -db="./data/kudos.db"
  ./server -db=":memory:" -driver=sqlite
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - kudos/service.go: GiveKudos / GetKudos
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/kudobank/api"
	"github.com/warp/kudobank/kudos"
	"github.com/warp/kudobank/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "kudos.db", "SQLite database path")
	driver := flag.String("driver", sqlite.DriverCGO, "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	maxSkew := flag.Duration("max-skew", kudos.DefaultMaxSkew, "Accepted clock drift for signed requests")
	origins := flag.String("origins", "", "Comma-separated CORS origins")
	sweep := flag.Duration("sweep", time.Minute, "Interval for dropping expired replay nonces")
	flag.Parse()

	// Initialize store
	store, err := sqlite.Open(*driver, *dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize service
	hub := api.NewHub()
	auth := kudos.NewSignatureAuthenticator(*maxSkew)
	svc := kudos.NewService(store,
		auth,
		kudos.WithObserver(kudos.Observers{kudos.LogObserver{}, hub}),
	)

	// Start nonce sweeper
	sweeper := api.NewNonceSweeper(auth)
	sweeper.CheckInterval = *sweep
	sweeper.Enabled = *sweep > 0
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	router := api.NewRouter(api.NewHandler(svc, hub), splitOrigins(*origins))

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Kudo bank listening on http://localhost:%d (driver %s, db %s)", *port, store.Driver(), *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
