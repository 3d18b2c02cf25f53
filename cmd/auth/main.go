package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
)

// auth is a CLI tool for managing the gateway's API keys. The gateway only
// stores digests, so keys are created here and their digest is added to
// server.apiKeys (or BS_API_KEYS).
//
// Usage:
//
//	auth create
//	auth hash  --key <raw-key>
//	auth check --key <raw-key>
//	auth list
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		cmdCreate()
	case "hash":
		cmdHash(args[1:])
	case "check":
		cmdCheck(loadConfig(*configPath), args[1:])
	case "list":
		cmdList(loadConfig(*configPath))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func keyFlag(name string, args []string) string {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	key := fs.String("key", "", "raw api key")
	fs.Parse(args)
	if *key == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		os.Exit(1)
	}
	return *key
}

func cmdCreate() {
	raw, digest, err := apikey.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("API key created. Store the key securely; only the digest goes into the config.")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", raw)
	fmt.Printf("  Digest: %s\n", digest)
}

func cmdHash(args []string) {
	fmt.Println(apikey.HashKey(keyFlag("hash", args)))
}

func cmdCheck(cfg *config.Config, args []string) {
	key := keyFlag("check", args)
	ring, err := apikey.NewKeyring(cfg.Server.APIKeys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	info, err := ring.Validate(key)
	if err != nil {
		fmt.Println("Key is not accepted.")
		os.Exit(1)
	}
	fmt.Printf("Key accepted (id %s).\n", info.ID)
}

func cmdList(cfg *config.Config) {
	if len(cfg.Server.APIKeys) == 0 {
		fmt.Println("No API keys configured; mutating routes are open.")
		return
	}
	fmt.Printf("%-10s  %s\n", "ID", "Digest")
	for _, d := range cfg.Server.APIKeys {
		id := d
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%-10s  %s\n", id, d)
	}
	fmt.Printf("\nTotal: %d key(s)\n", len(cfg.Server.APIKeys))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: auth <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create   Generate a new API key and its digest")
	fmt.Fprintln(os.Stderr, "  hash     Print the digest of an existing key")
	fmt.Fprintln(os.Stderr, "  check    Test a key against the configured digests")
	fmt.Fprintln(os.Stderr, "  list     List the configured digests")
}
