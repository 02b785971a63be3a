package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/client"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: qlvb-cli migrate")
			fmt.Println()
			fmt.Println("Run database migrations from the migrations/ directory.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  DATABASE_URL  PostgreSQL connection string (required)")
			return
		}
		os.Exit(runMigrate())
	case "health":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: qlvb-cli health")
			fmt.Println()
			fmt.Println("Check if the server is running.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  SERVER_URL  Server base URL (default: http://localhost:8080)")
			return
		}
		os.Exit(runHealth())
	case "read-status":
		if hasFlag("--help", os.Args[2:]) || len(os.Args) < 4 {
			fmt.Println("Usage: qlvb-cli read-status <document-type> <id> [id...]")
			fmt.Println()
			fmt.Println("Print the read status of documents for the token's user.")
			fmt.Println()
			fmt.Println("Document types:")
			for _, t := range models.DocumentTypes() {
				fmt.Printf("  %s\n", t)
			}
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  SERVER_URL  Server base URL (default: http://localhost:8080)")
			fmt.Println("  TOKEN       Bearer token (required)")
			if len(os.Args) < 4 && !hasFlag("--help", os.Args[2:]) {
				os.Exit(1)
			}
			return
		}
		os.Exit(runReadStatus(os.Args[2], os.Args[3:]))
	case "token":
		if hasFlag("--help", os.Args[2:]) || len(os.Args) != 3 {
			fmt.Println("Usage: qlvb-cli token <user-id>")
			fmt.Println()
			fmt.Println("Issue an access token for local testing.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  JWT_SECRET  Signing secret shared with the server (required)")
			if len(os.Args) != 3 {
				os.Exit(1)
			}
			return
		}
		os.Exit(runToken(os.Args[2]))
	case "version":
		fmt.Printf("qlvb-cli %s\n", version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: qlvb-cli <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate      Run database migrations")
	fmt.Println("  health       Check if the server is running")
	fmt.Println("  read-status  Query document read statuses")
	fmt.Println("  token        Issue a test access token")
	fmt.Println("  version      Print version info")
	fmt.Println()
	fmt.Println("Run 'qlvb-cli <command> --help' for details on a command.")
}

func hasFlag(flag string, args []string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "error: %s environment variable is required\n", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- migrate ---

func runMigrate() int {
	dbURL := requireEnv("DATABASE_URL")

	fmt.Println("connecting to database...")
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: migration init failed: %v\n", err)
		return 1
	}
	defer m.Close()

	fmt.Println("running migrations...")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(os.Stderr, "error: migration failed: %v\n", err)
		return 1
	}

	v, dirty, _ := m.Version()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Printf("no new migrations (current version: %d)\n", v)
	} else {
		fmt.Printf("migrations applied (version: %d, dirty: %v)\n", v, dirty)
	}
	return 0
}

// --- health ---

func runHealth() int {
	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	url := serverURL + "/health"

	fmt.Printf("checking %s ...\n", url)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status: %d\n", resp.StatusCode)
	if len(body) > 0 {
		fmt.Printf("body:   %s\n", string(body))
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Println("server is healthy")
		return 0
	}
	fmt.Fprintln(os.Stderr, "server returned non-200 status")
	return 1
}

// --- read-status ---

func runReadStatus(typeArg string, idArgs []string) int {
	docType, err := models.ParseDocumentType(typeArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ids := make([]int64, 0, len(idArgs))
	for _, a := range idArgs {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "error: invalid document id %q\n", a)
			return 1
		}
		ids = append(ids, id)
	}

	c := client.New(envOr("SERVER_URL", "http://localhost:8080"), requireEnv("TOKEN"))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entries, err := c.FetchBatch(ctx, docType, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// --- token ---

func runToken(userArg string) int {
	userID, err := strconv.ParseInt(userArg, 10, 64)
	if err != nil || userID <= 0 {
		fmt.Fprintf(os.Stderr, "error: invalid user id %q\n", userArg)
		return 1
	}

	token, err := auth.NewTokenService(requireEnv("JWT_SECRET")).GenerateAccessToken(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
