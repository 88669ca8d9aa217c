package main

import (
	"context"
	"delivery-dispatch-service/internal/adapters/audit"
	"delivery-dispatch-service/internal/adapters/cache"
	"delivery-dispatch-service/internal/adapters/geocoding"
	"delivery-dispatch-service/internal/adapters/kvstore"
	"delivery-dispatch-service/internal/adapters/notify"
	"delivery-dispatch-service/internal/adapters/realtime"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/adapters/traffic"
	"delivery-dispatch-service/internal/api"
	"delivery-dispatch-service/internal/auth"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/ledger"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/redact"
	"delivery-dispatch-service/internal/services"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
)

// main is the application composition root.
// It wires concrete adapters (SQL or memory orders, Redis or file state,
// ORS or mock geocoding) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}
	obs.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Get("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}
	port := config.Get("PORT", "8080")

	repo, sqlDB, err := openOrders(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	if seedPath := config.Get("SEED_PATH", ""); seedPath != "" {
		n, err := repositories.SeedFromJSON(ctx, repo, seedPath, time.Now())
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("seeded orders=%d path=%s", n, seedPath)
	}

	var rdb *redis.Client
	if addr := config.Get("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping addr=%s: %v", addr, err)
		}
		defer rdb.Close()
	}

	store, err := openStateStore(rdb)
	if err != nil {
		log.Fatal(err)
	}

	sealer, err := newSealer()
	if err != nil {
		log.Fatal(err)
	}
	codLedger, err := ledger.Open(ctx, ledger.Options{
		Sealer:    sealer,
		Store:     store,
		Threshold: cfg.Tuning.LedgerThreshold,
	})
	if err != nil {
		log.Fatal(err)
	}

	geocoder, err := newGeocoder(cfg, sqlDB, rdb)
	if err != nil {
		log.Fatal(err)
	}

	zones, err := geo.NewZoneRegistry(cfg.Zones)
	if err != nil {
		log.Fatal(err)
	}
	feed := traffic.NewFeed(cfg.Incidents, cfg.Tuning.IncidentLifetime())
	optimizer := services.NewRouteOptimizer(geocoder, feed, zones, services.OptimizerOptions{
		ClusterRadiusKm:   cfg.Tuning.ClusterRadiusKm,
		ExcludeRestricted: cfg.Tuning.ExcludeRestricted,
		GeocodeWorkers:    cfg.Tuning.GeocodeWorkers,
	})

	auditLog, err := audit.NewJSONLLog(config.Get("AUDIT_LOG_PATH", "data/audit.jsonl"))
	if err != nil {
		log.Fatal(err)
	}
	defer auditLog.Close()

	hub := realtime.NewHub()
	deliveries := services.NewDeliveryService(repo, optimizer, hub, auditLog)

	var notifier ports.Notifier = notify.LogNotifier{}
	if url := config.Get("WEBHOOK_URL", ""); url != "" {
		notifier = notify.NewWebhookNotifier(url)
	}
	cod, err := services.NewCODService(ctx, deliveries, repo, codLedger, store, notifier)
	if err != nil {
		log.Fatal(err)
	}

	secret := config.Get("JWT_SECRET", "")
	if secret == "" {
		log.Println("JWT_SECRET not set, using development secret")
		secret = "dev-secret-change-me"
	}
	issuer, err := auth.NewIssuer(secret)
	if err != nil {
		log.Fatal(err)
	}

	go cod.RunComplianceMonitor(ctx, cfg.Tuning.MonitorEvery())

	var origins []string
	if v := config.Get("WS_ORIGINS", ""); v != "" {
		origins = strings.Split(v, ",")
	}
	router := api.NewRouter(api.Deps{
		Repo:           repo,
		Optimizer:      optimizer,
		Deliveries:     deliveries,
		COD:            cod,
		Incidents:      feed,
		Hub:            hub,
		Auth:           issuer,
		Redactor:       redact.New(language.Make(config.Get("DISPLAY_LOCALE", "en"))),
		Depot:          cfg.Depot,
		OriginPatterns: origins,
	})

	// WriteTimeout stays 0: websocket streams outlive any fixed deadline.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown err=%v", err)
		}
	}()

	log.Printf("Server listening addr=:%s db_driver=%s", port, config.Get("DB_DRIVER", "sqlite"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// openOrders picks the order repository from DB_DRIVER. The returned *sqlx.DB
// is nil for the memory driver.
func openOrders(ctx context.Context) (ports.OrderRepository, *sqlx.DB, error) {
	driver := config.Get("DB_DRIVER", "sqlite")

	var dsn string
	switch driver {
	case "memory":
		return repositories.NewMemoryOrderRepository(), nil, nil
	case "sqlite":
		dsn = config.Get("DB_PATH", "data/app.db")
	case "pgx":
		dsn = config.Get("DATABASE_URL", "")
		if dsn == "" {
			return nil, nil, errors.New("DATABASE_URL is required for DB_DRIVER=pgx")
		}
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q (want sqlite, pgx or memory)", driver)
	}

	sqlDB, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := repositories.InitSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return repositories.NewSQLOrderRepository(sqlDB), sqlDB, nil
}

// openStateStore holds the ledger and wallet snapshots.
func openStateStore(rdb *redis.Client) (ports.KeyValueStore, error) {
	if rdb != nil {
		return kvstore.NewRedisStore(rdb, "dispatch:"), nil
	}
	return kvstore.NewFileStore(config.Get("LEDGER_DIR", "data/ledger"))
}

func newSealer() (ledger.Sealer, error) {
	switch kind := config.Get("LEDGER_SEALER", "pow"); kind {
	case "pow":
		return ledger.NewProofOfWork(config.GetInt("LEDGER_DIFFICULTY", ledger.DefaultDifficulty)), nil
	case "hmac":
		s, err := ledger.NewSignedSequence([]byte(config.Get("LEDGER_HMAC_KEY", "")))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_SEALER %q (want pow or hmac)", kind)
	}
}

// newGeocoder uses ORS when ORS_API_KEY is set, cached in Redis or SQL when
// available. Without a key, addresses hash to points around the depot.
func newGeocoder(cfg *config.File, sqlDB *sqlx.DB, rdb *redis.Client) (ports.GeocodingProvider, error) {
	key := config.Get("ORS_API_KEY", "")
	if key == "" {
		log.Println("ORS_API_KEY not set, using mock geocoder")
		return geocoding.NewMockGeocoder(cfg.Depot, nil), nil
	}

	ors, err := geocoding.NewORSGeocoder(key, config.Get("ORS_BASE_URL", ""), config.Get("ORS_COUNTRY", ""))
	if err != nil {
		return nil, err
	}

	var gc ports.GeocodeCache
	switch {
	case rdb != nil:
		gc = cache.NewRedisGeocodeCache(rdb, "dispatch:geocode:", 30*24*time.Hour)
	case sqlDB != nil:
		gc = cache.NewSQLGeocodeCache(sqlDB, 30*24*time.Hour)
	default:
		return ors, nil
	}
	return geocoding.NewCachedGeocoder(ors, gc), nil
}
