// ABOUTME: Entry point for the parley-gateway chat server
// ABOUTME: Serves the conversation API and generates bot replies

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/bot"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/server"
	"github.com/2389/parley/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _
 _ __   __ _ _ __ ___| | ___ _   _
| '_ \ / _' | '__/ __| |/ _ \ | | |
| |_) | (_| | |  \__ \ |  __/ |_| |
| .__/ \__,_|_|  |___/_|\___|\__, |
|_|                          |___/
`

// dedupeTTL bounds how long a reply request ID is remembered for
// idempotent retries.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// getConfigPath returns the path to the gateway config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/gateway.yaml > ~/.config/parley/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "gateway.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parley-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  bootstrap --name NAME  Create config, database, and a signed-in token")
		fmt.Println("  token --name NAME      Generate a token (add --user ID to re-issue)")
		fmt.Println("  health                 Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	provider := cfg.Bot.Provider
	if provider == "" {
		provider = "echo"
	}
	fmt.Printf("Bot:      %s\n", provider)

	fmt.Println()

	logger.Info("starting parley-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"bot_provider", provider,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	responder, err := bot.New(bot.Config{
		Provider:     cfg.Bot.Provider,
		APIKey:       cfg.Bot.APIKey,
		Model:        cfg.Bot.Model,
		SystemPrompt: cfg.Bot.SystemPrompt,
	})
	if err != nil {
		return fmt.Errorf("creating bot responder: %w", err)
	}

	cache := dedupe.New(dedupeTTL, dedupeMaxSize)
	defer cache.Close()

	srv, err := server.New(server.Config{
		Addr:         cfg.Server.HTTPAddr,
		Store:        st,
		Notifier:     hub.NewNotifier(logger),
		Responder:    responder,
		Dedupe:       cache,
		Verifier:     auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		ReplyTimeout: cfg.Bot.ReplyTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// parseNameFlag reads a --name/-n value from args, supporting both
// "--name value" and "--name=value" forms.
func parseNameFlag(args []string) (string, error) {
	var displayName string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-n="):
			displayName = strings.TrimPrefix(arg, "-n=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if displayName == "" {
		return "", fmt.Errorf("--name flag is required")
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "", fmt.Errorf("display name cannot be empty or whitespace only")
	}
	if len(displayName) > 100 {
		return "", fmt.Errorf("display name exceeds maximum length of 100 characters")
	}
	return displayName, nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates the data directory
// 3. Generates a JWT token for the named user
//
// This is a one-command setup: parley-gateway bootstrap --name "Your Name"
func runBootstrap() error {
	displayName, err := parseNameFlag(os.Args[2:])
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "parley.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	var cfg *config.Config
	var jwtSecret string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# parley-gateway configuration
# Generated by parley-gateway bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "720h"

bot:
  provider: "echo"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("jwt_secret not configured in %s (required for bootstrap)", configPath)
		}
		jwtSecret = cfg.Auth.JWTSecret

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	// Open the store once so the schema exists before first serve
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	userID := uuid.New().String()
	verifier := auth.NewJWTVerifier([]byte(jwtSecret))

	expiresAt := time.Now().Add(cfg.Auth.TokenTTL).UTC()
	token, err := verifier.Generate(userID, displayName, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for the CLI client to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  User")
	cyan.Println("  ----")
	fmt.Printf("  ID:           %s\n", userID)
	fmt.Printf("  Display Name: %s\n", displayName)
	fmt.Printf("  Token:        %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    parley-gateway serve    # start the gateway")
	fmt.Println("    parley                  # open the chat client")
	fmt.Println()

	return nil
}

// runToken generates a token against an existing config. With --user it
// re-issues for a known user ID, otherwise it mints a fresh one. Useful for
// adding a second user to a running gateway or renewing an expired token.
func runToken() error {
	var userID, displayName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}
	if displayName == "" {
		return fmt.Errorf("--name flag is required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if userID == "" {
		userID = uuid.New().String()
	}
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	token, err := verifier.Generate(userID, displayName, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Printf("User ID: %s\n", userID)
	fmt.Printf("Token:   %s\n", token)
	fmt.Printf("Expires: %s\n", time.Now().Add(cfg.Auth.TokenTTL).UTC().Format(time.RFC3339))
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("parley-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "parley.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
		fmt.Println("Generated a random secret.")
	}
	tokenTTL := prompt(reader, "Token TTL", "720h")

	// Bot
	fmt.Println("\n--- Bot Configuration ---")
	provider := prompt(reader, "Bot provider (echo/openai)", "echo")
	var apiKey, model, systemPrompt string
	if provider == "openai" {
		apiKey = prompt(reader, "OpenAI API key (or ${OPENAI_API_KEY})", "${OPENAI_API_KEY}")
		model = prompt(reader, "Model (leave empty for default)", "")
		systemPrompt = prompt(reader, "System prompt (leave empty for none)", "")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# parley-gateway configuration\n")
	cfg.WriteString("# Generated by parley-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString(fmt.Sprintf("  token_ttl: \"%s\"\n", tokenTTL))
	cfg.WriteString("\n")

	cfg.WriteString("bot:\n")
	cfg.WriteString(fmt.Sprintf("  provider: \"%s\"\n", provider))
	if apiKey != "" {
		cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", apiKey))
	}
	if model != "" {
		cfg.WriteString(fmt.Sprintf("  model: \"%s\"\n", model))
	}
	if systemPrompt != "" {
		cfg.WriteString(fmt.Sprintf("  system_prompt: \"%s\"\n", systemPrompt))
	}
	cfg.WriteString("  reply_timeout: \"60s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  parley-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
