package main

import (
	"context"
	"delivery-dispatch-service/internal/adapters/kvstore"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/auth"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/ledger"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const usage = `usage: ledgertool <command> [flags]

commands:
  init     create the order schema and load seed orders
  verify   check the COD ledger hash chain
  token    print a signed token for a driver or dispatcher`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "init":
		err = initAndSeed(ctx, os.Args[2:])
	case "verify":
		err = verify(ctx)
	case "token":
		err = token(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

func initAndSeed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	driver := fs.String("driver", config.Get("DB_DRIVER", "sqlite"), "sqlite or pgx")
	seedPath := fs.String("seed", config.Get("SEED_PATH", "data/seeds/orders.json"), "seed file")
	fs.Parse(args)

	dsn := config.Get("DB_PATH", "data/app.db")
	if *driver == "pgx" {
		dsn = config.Get("DATABASE_URL", "")
		if dsn == "" {
			return errors.New("DATABASE_URL is required for pgx")
		}
	}

	sqlDB, err := db.Open(ctx, *driver, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, sqlDB); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Println("Schema ready.")

	log.Println("Seeding database...")
	n, err := repositories.SeedFromJSON(ctx, repositories.NewSQLOrderRepository(sqlDB), *seedPath, time.Now())
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	color.Green("✓ seeded %d orders", n)
	return nil
}

func verify(ctx context.Context) error {
	var store ports.KeyValueStore
	if addr := config.Get("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		store = kvstore.NewRedisStore(rdb, "dispatch:")
	} else {
		fs, err := kvstore.NewFileStore(config.Get("LEDGER_DIR", "data/ledger"))
		if err != nil {
			return err
		}
		store = fs
	}

	var sealer ledger.Sealer = ledger.NewProofOfWork(config.GetInt("LEDGER_DIFFICULTY", ledger.DefaultDifficulty))
	if config.Get("LEDGER_SEALER", "pow") == "hmac" {
		s, err := ledger.NewSignedSequence([]byte(config.Get("LEDGER_HMAC_KEY", "")))
		if err != nil {
			return err
		}
		sealer = s
	}

	// Open verifies the stored chain before returning.
	l, err := ledger.Open(ctx, ledger.Options{Sealer: sealer, Store: store})
	if err != nil {
		return err
	}

	view := l.View()
	color.Green("✓ ledger intact")
	color.White("  blocks:  %d", len(view.Blocks))
	color.White("  pending: %d", len(view.PendingTransactions))
	if n := len(view.Blocks); n > 0 {
		color.White("  head:    %s", view.Blocks[n-1].Hash)
	}
	return nil
}

func token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	driverID := fs.String("driver", "", "driver id (empty for a dispatcher token)")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	fs.Parse(args)

	secret := config.Get("JWT_SECRET", "")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	iss, err := auth.NewIssuer(secret)
	if err != nil {
		return err
	}

	role := auth.RoleDispatcher
	if *driverID != "" {
		role = auth.RoleDriver
	}
	tok, err := iss.MakeToken(*driverID, role, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
