package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"

	"github.com/quillbooks/stepup/internal/api"
	"github.com/quillbooks/stepup/internal/authority"
	"github.com/quillbooks/stepup/internal/flow"
	"github.com/quillbooks/stepup/internal/keystore"
	"github.com/quillbooks/stepup/internal/lockfile"
	"github.com/quillbooks/stepup/internal/mfa"
	"github.com/quillbooks/stepup/internal/models"
	"github.com/quillbooks/stepup/internal/reconcile"
	"github.com/quillbooks/stepup/internal/store"
	"github.com/quillbooks/stepup/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StepUp state data
	DefaultStateDir = "/var/lib/stepup"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "stepup.db"
	// DefaultScenarioTimeout bounds a full scenario run
	DefaultScenarioTimeout = 2 * time.Minute
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("StepUp failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StepUp exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	DatabaseURL  string
	AuthorityURL string
	AuthToken    string
	DeviceSecret string
	ValidateCode string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	authorityURL  *string
	authToken     *string
	deviceSecret  *string
	validateCode  *string
	scenario      *string
	transactionID *string
	devAuthority  *bool
	pairQR        *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:     os.Getenv("STEPUP_STATE_DIR"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AuthorityURL: os.Getenv("STEPUP_AUTHORITY_URL"),
		AuthToken:    os.Getenv("STEPUP_AUTH_TOKEN"),
		DeviceSecret: os.Getenv("STEPUP_DEVICE_SECRET"),
		ValidateCode: os.Getenv("STEPUP_VALIDATE_CODE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STEPUP_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"STEPUP_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"STEPUP_AUTHORITY_URL", config.AuthorityURL,
		"STEPUP_AUTH_TOKEN_SET", config.AuthToken != "",
		"STEPUP_DEVICE_SECRET_SET", config.DeviceSecret != "",
		"STEPUP_VALIDATE_CODE_SET", config.ValidateCode != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for StepUp data (overrides $STEPUP_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the local store (overrides $DATABASE_URL)"),
		authorityURL:  flag.String("authority-url", config.AuthorityURL, "remote authority base URL (overrides $STEPUP_AUTHORITY_URL)"),
		authToken:     flag.String("auth-token", config.AuthToken, "bearer token for the authority (overrides $STEPUP_AUTH_TOKEN)"),
		deviceSecret:  flag.String("device-secret", config.DeviceSecret, "device secret for key encryption (overrides $STEPUP_DEVICE_SECRET)"),
		validateCode:  flag.String("validate-code", config.ValidateCode, "validate code for registration (overrides $STEPUP_VALIDATE_CODE)"),
		scenario:      flag.String("scenario", "register", "scenario to run: register, troubleshoot, revoke, approve, deny"),
		transactionID: flag.String("transaction-id", "", "transaction ID for approve/deny scenarios"),
		devAuthority:  flag.Bool("dev-authority", util.ParseBoolEnv("STEPUP_DEV_AUTHORITY", false), "run an in-process stub authority instead of a remote one (overrides $STEPUP_DEV_AUTHORITY)"),
		pairQR:        flag.Bool("pair-qr", false, "render a pairing QR code after successful registration"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"authorityURL", *flags.authorityURL,
		"scenario", *flags.scenario,
		"transactionID", *flags.transactionID,
		"devAuthority", *flags.devAuthority)

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// startDevAuthority serves the in-process stub authority on a loopback port
// and returns its base URL.
func startDevAuthority(flags Flags) (*authority.Server, string, func(), error) {
	srv := authority.NewServer(authority.WithValidateCode(*flags.validateCode))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to listen for dev authority: %w", err)
	}
	httpServer := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("Dev authority server stopped", "error", err)
		}
	}()

	baseURL := "http://" + listener.Addr().String()
	stop := func() {
		if err := httpServer.Close(); err != nil {
			slog.Error("Failed to stop dev authority", "error", err)
		}
	}
	slog.Info("Dev authority running", "url", baseURL)
	return srv, baseURL, stop, nil
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	reconciler := reconcile.Start(st)
	defer reconciler.Stop()

	deviceSecret := *flags.deviceSecret
	if deviceSecret == "" {
		slog.Warn("No device secret configured; using an insecure development secret")
		deviceSecret = "stepup-development-secret"
	}
	ks, err := keystore.New(*flags.stateDir, []byte(deviceSecret))
	if err != nil {
		return err
	}

	authorityURL := *flags.authorityURL
	var devServer *authority.Server
	if *flags.devAuthority {
		srv, url, stop, err := startDevAuthority(flags)
		if err != nil {
			return err
		}
		defer stop()
		devServer = srv
		authorityURL = url
	}
	if authorityURL == "" {
		return fmt.Errorf("authority URL not set (use -authority-url or -dev-authority)")
	}

	client, err := api.NewClient(api.WithBaseURL(authorityURL), api.WithAuthToken(*flags.authToken))
	if err != nil {
		return err
	}

	svc := mfa.NewService(client, st)
	callbacks := flow.NewCallbackRegistry()
	runner := flow.NewRunner(svc, ks, st, callbacks)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultScenarioTimeout)
	defer cancel()

	return runScenario(ctx, flags, runner, callbacks, svc, st, ks, devServer)
}

// runScenario executes the selected scenario and reports its outcome.
func runScenario(ctx context.Context, flags Flags, runner *flow.Runner, callbacks *flow.CallbackRegistry, svc *mfa.Service, st store.Store, ks *keystore.Keystore, devServer *authority.Server) error {
	var result models.ClassifiedResponse

	switch *flags.scenario {
	case "register":
		machine := flow.NewMachine(models.ScenarioRegistration)
		defer machine.Close()
		machine.Dispatch(models.Action{Type: models.ActionSetValidateCode, Code: *flags.validateCode})
		machine.Dispatch(models.Action{Type: models.ActionSetSoftPromptApproved, Flag: true})
		callbacks.Register(models.ScenarioRegistration, reportOutcome)
		result = runner.RunRegistration(ctx, machine, models.AuthMethodBiometrics)
		if result.Reason == models.ReasonBackendSuccess && *flags.pairQR {
			renderPairingQR(ks)
		}

	case "troubleshoot":
		machine := flow.NewMachine(models.ScenarioAuthentication)
		defer machine.Close()
		callbacks.Register(models.ScenarioAuthentication, reportOutcome)
		result = runner.RunTroubleshoot(ctx, machine, models.AuthMethodBiometrics)

	case "revoke":
		machine := flow.NewMachine(models.ScenarioRevocation)
		defer machine.Close()
		callbacks.Register(models.ScenarioRevocation, reportOutcome)
		result = runner.RunRevocation(ctx, machine)
		if result.Reason == models.ReasonBackendSuccess {
			if err := ks.DeleteKey(); err != nil {
				slog.Error("Failed to delete local device key after revocation", "error", err)
			}
		}

	case "approve", "deny":
		transactionID := *flags.transactionID
		if transactionID == "" {
			return fmt.Errorf("scenario %s requires -transaction-id", *flags.scenario)
		}
		if devServer != nil {
			devServer.SeedPendingReview(transactionID, models.PendingReview{
				Amount:       1899,
				Currency:     "USD",
				Merchant:     "Demo Merchant",
				Created:      time.Now(),
				CardLastFour: "4242",
			})
		}
		refreshPendingReviews(ctx, svc, st, transactionID)

		decision := models.ReviewDecisionApprove
		if *flags.scenario == "deny" {
			decision = models.ReviewDecisionDeny
		}
		machine := flow.NewMachine(models.ScenarioTransactionReview)
		defer machine.Close()
		machine.Dispatch(models.Action{Type: models.ActionSetSoftPromptApproved, Flag: true})
		callbacks.Register(models.ScenarioTransactionReview, reportOutcome)
		result = runner.RunTransactionReview(ctx, machine, transactionID, decision, models.AuthMethodBiometrics)

	default:
		return fmt.Errorf("unknown scenario %q", *flags.scenario)
	}

	slog.Info("Scenario completed", "scenario", *flags.scenario, "reason", result.Reason, "httpStatus", result.HTTPStatusCode)
	return nil
}

// refreshPendingReviews pulls the pending review queue into the local store so
// the review guard sees current state.
func refreshPendingReviews(ctx context.Context, svc *mfa.Service, st store.Store, transactionID string) {
	pending, err := svc.IsTransactionStillPendingReview(ctx, transactionID)
	if err != nil {
		slog.Error("Failed to query pending reviews", "error", err)
		return
	}
	if pending {
		if err := st.Set(store.KeyPendingReviews, map[string]models.PendingReview{transactionID: {}}); err != nil {
			slog.Error("Failed to mirror pending review", "error", err)
		}
	} else {
		if err := st.Set(store.KeyPendingReviews, map[string]models.PendingReview{}); err != nil {
			slog.Error("Failed to mirror empty pending review queue", "error", err)
		}
	}
}

// reportOutcome is the fulfillment callback printing the scenario result.
func reportOutcome(result models.ClassifiedResponse) {
	fmt.Printf("outcome: %s", result.Reason)
	if result.Message != "" {
		fmt.Printf(" (%s)", result.Message)
	}
	fmt.Println()
}

// renderPairingQR prints a QR code carrying the enrolled key ID so a
// companion device can confirm which key this device registered.
func renderPairingQR(ks *keystore.Keystore) {
	keyID, err := ks.KeyID()
	if err != nil {
		slog.Error("Failed to read key ID for pairing QR", "error", err)
		return
	}
	fmt.Println("Scan to confirm enrolled key:")
	qrterminal.GenerateHalfBlock("stepup:key:"+keyID, qrterminal.L, os.Stdout)
}
