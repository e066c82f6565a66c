/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the policy issuance wizard server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration (.env supported)
  2. Build the zap logger
  3. Initialize SQLite store (drafts, policies, catalogs, factors)
  4. Seed demo reference data when requested
  5. Create API handler with dependencies
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database
  -blobs   Directory for uploaded documents (default: ./data/blobs)
  -seed    Load demo catalogs and clients on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/issuance-engine/api"
	"github.com/warp/issuance-engine/branch"
	"github.com/warp/issuance-engine/catalog"
	"github.com/warp/issuance-engine/config"
	"github.com/warp/issuance-engine/docs"
	"github.com/warp/issuance-engine/logging"
	"github.com/warp/issuance-engine/payment"
	"github.com/warp/issuance-engine/store/sqlite"
)

func main() {
	cfg := config.MustLoad()

	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	blobDir := flag.String("blobs", "./data/blobs", "directory for uploaded documents")
	seed := flag.Bool("seed", false, "load demo catalogs and clients")
	flag.Parse()

	log, err := logging.New(logging.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := sqlite.New(*dbPath, branch.NewCodec())
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if *seed {
		if err := seedDemoData(ctx, store); err != nil {
			log.Fatal("failed to seed demo data", zap.Error(err))
		}
		log.Info("demo data loaded")
	}

	handler := api.NewHandler(api.Handler{
		Store:         store,
		Catalogs:      store,
		Clients:       store,
		Factors:       store,
		Uploader:      docs.NewFileUploader(*blobDir),
		SaveAction:    store.Archive(),
		Codec:         branch.NewCodec(),
		Log:           log,
		AutosaveDelay: cfg.Wizard.AutosaveDelay,
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", cfg.Address()),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// seedDemoData installs enough reference data to click through a policy.
func seedDemoData(ctx context.Context, store *sqlite.Store) error {
	catalogs := map[catalog.Kind][]catalog.Item{
		catalog.KindInsurers: {
			{ID: "ins-1", Name: "Aseguradora Nacional", Active: true},
			{ID: "ins-2", Name: "Seguros del Istmo", Active: true},
		},
		catalog.KindProducts: {
			{ID: "prod-auto", Name: "Auto Total", Active: true},
			{ID: "prod-vida", Name: "Vida Plus", Active: true},
		},
		catalog.KindRegions: {
			{ID: "reg-1", Name: "Capital", Active: true},
			{ID: "reg-2", Name: "Interior", Active: true},
		},
		catalog.KindVehicleTypes: {
			{ID: "vt-sedan", Name: "Sedan", Active: true},
			{ID: "vt-suv", Name: "SUV", Active: true},
			{ID: "vt-pickup", Name: "Pickup", Active: true},
		},
		catalog.KindBrands: {
			{ID: "br-toyota", Name: "Toyota", Active: true},
			{ID: "br-hyundai", Name: "Hyundai", Active: true},
		},
		catalog.KindCountries: {
			{ID: "PA", Name: "Panama", Active: true},
			{ID: "CR", Name: "Costa Rica", Active: true},
			{ID: "CO", Name: "Colombia", Active: true},
		},
	}
	for kind, items := range catalogs {
		if err := store.SeedCatalog(ctx, kind, items); err != nil {
			return err
		}
	}

	if err := store.SeedClients(ctx, []catalog.Candidate{
		{ID: "c1", Name: "Maria Lopez", IDDocument: "8-123-456"},
		{ID: "c2", Name: "Juan Perez", IDDocument: "9-999-111"},
		{ID: "c3", Name: "Ana Castillo", IDDocument: "4-777-890"},
	}); err != nil {
		return err
	}

	return store.SeedFactors(ctx, "prod-auto", payment.FactorTable{
		CashFactor:     decimal.NewFromInt(90),
		CreditFactor:   decimal.NewFromInt(85),
		CommissionRate: decimal.NewFromFloat(0.03),
	})
}
