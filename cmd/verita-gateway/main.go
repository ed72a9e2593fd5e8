package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dverna/verita/internal/api"
	"github.com/dverna/verita/internal/auth"
	"github.com/dverna/verita/internal/config"
	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/ledger"
	"github.com/dverna/verita/internal/ledger/pgstore"
	"github.com/dverna/verita/internal/ledger/sqlstore"
	"github.com/dverna/verita/internal/logging"
	"github.com/dverna/verita/internal/notify"
	"github.com/dverna/verita/internal/policy"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newServer(addr string, cfg config.Config) *http.Server {
	svc, err := buildService(cfg)
	if err != nil {
		fatalf("service error: %v", err)
	}

	if cfg.Webhook.Enabled && cfg.Webhook.Target != "" {
		interval, err := pollInterval(cfg.Webhook.PollInterval)
		if err != nil {
			fatalf("webhook poll_interval: %v", err)
		}
		go notify.RunOutboxWorker(context.Background(), svc.Store, notify.NewHTTPPoster(0), interval)
	}

	authn := auth.NewAuthenticatorFromEnv()
	if cfg.APIToken != "" {
		authn = &auth.TokenAuthenticator{Token: cfg.APIToken, Subject: "operator"}
	}

	h := &api.Handler{
		Auth:    authn,
		Service: svc,
	}
	return &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func buildService(cfg config.Config) (*api.ReviewService, error) {
	loaded := policy.Default()
	if cfg.PolicyPath != "" {
		l, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		loaded = l
	}

	svc, err := api.NewDevService(loaded)
	if err != nil {
		return nil, err
	}

	switch cfg.DB.Driver {
	case "", "memory":
		// NewDevService already wired the in-memory ledger.
	case "sqlite":
		st, err := sqlstore.OpenSQLite(cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(st.DB(), ledger.DBSQLite); err != nil {
			return nil, err
		}
		svc.Store = st
	case "postgres":
		st, err := pgstore.OpenPostgres(cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(st.DB(), ledger.DBPostgres); err != nil {
			return nil, err
		}
		svc.Store = st
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.DB.Driver)
	}

	if cfg.SigningKey.PrivateKeyPath != "" {
		priv, pub, err := crypto.LoadEd25519PrivateKey(cfg.SigningKey.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		keyID := cfg.SigningKey.KeyID
		if keyID == "" {
			keyID = "primary"
		}
		svc.Signer = crypto.NewEd25519Signer(keyID, priv)
		svc.PublicKey = pub
	} else {
		logging.New("gateway").Warn("using ephemeral signing key; receipts will not verify across restarts")
	}

	svc.Workers = cfg.Engine.Workers
	if cfg.Webhook.Enabled {
		svc.WebhookTarget = cfg.Webhook.Target
	}
	return svc, nil
}

func pollInterval(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(addr string, cfg config.Config) *http.Server

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("verita-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to verita config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logging.Init(logging.ParseLevel(getenv("VERITA_LOG_LEVEL")), getenv("VERITA_LOG_FORMAT"))

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("VERITA_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	addr := firstNonEmpty(getenv("VERITA_LISTEN_ADDR"), cfg.ListenAddr, ":8080")

	cfg.PolicyPath = firstNonEmpty(getenv("VERITA_POLICY_PATH"), cfg.PolicyPath)
	cfg.APIToken = firstNonEmpty(getenv("VERITA_API_TOKEN"), cfg.APIToken)
	cfg.DB.Driver = firstNonEmpty(getenv("VERITA_DB_DRIVER"), cfg.DB.Driver)
	cfg.DB.DSN = firstNonEmpty(getenv("VERITA_DB_DSN"), cfg.DB.DSN)
	cfg.SigningKey.KeyID = firstNonEmpty(getenv("VERITA_SIGNING_KEY_ID"), cfg.SigningKey.KeyID)
	cfg.SigningKey.PrivateKeyPath = firstNonEmpty(getenv("VERITA_SIGNING_KEY_PATH"), cfg.SigningKey.PrivateKeyPath)
	if target := getenv("VERITA_WEBHOOK_TARGET"); target != "" {
		cfg.Webhook.Target = target
		cfg.Webhook.Enabled = true
	}

	server := factory(addr, cfg)

	logging.New("gateway").Info("listening", "addr", addr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
