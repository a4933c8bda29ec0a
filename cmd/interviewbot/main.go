package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/FounderLoop/interviewbot/internal/api"
	"github.com/FounderLoop/interviewbot/internal/flow"
	"github.com/FounderLoop/interviewbot/internal/genai"
	"github.com/FounderLoop/interviewbot/internal/messaging"
	"github.com/FounderLoop/interviewbot/internal/store"
	"github.com/FounderLoop/interviewbot/internal/twiliowhatsapp"
	"github.com/FounderLoop/interviewbot/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for InterviewBot state data
	DefaultStateDir = "/var/lib/interviewbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "interviewbot.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("InterviewBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("InterviewBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	Schema      string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN     *string
	schema    *string
	openaiKey *string
	apiAddr   *string
}

// initializeLogger sets up structured logging. DEBUG=1 enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Schema:      os.Getenv("PROJECT_SCHEMA"),
		StateDir:    util.GetenvDefault("INTERVIEWBOT_STATE_DIR", DefaultStateDir),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PROJECT_SCHEMA", config.Schema,
		"INTERVIEWBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		schema:    flag.String("schema", config.Schema, "Postgres schema namespace (overrides $PROJECT_SCHEMA)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}
	flag.Parse()
	return flags
}

// buildStore constructs the store backend implied by the DSN.
func buildStore(flags Flags) (store.Store, error) {
	storeOpts := []store.Option{}
	if *flags.schema != "" {
		storeOpts = append(storeOpts, store.WithSchema(*flags.schema))
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	return store.NewSQLiteStore(storeOpts...)
}

// run wires the modules together and serves until interrupted.
func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	completer, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	twilioClient, err := twiliowhatsapp.NewClient()
	if err != nil {
		return err
	}
	msgService := messaging.NewTwilioService(twilioClient)

	composer := flow.NewComposer(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))
	router := flow.NewRouter(st, completer, msgService, composer)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(router, st, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping InterviewBot with configured modules")
	return server.Start(ctx)
}
