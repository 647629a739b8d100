package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sovereign/core/state"
	"sovereign/crypto"
	"sovereign/services/sovereignd/server"
	"sovereign/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dataDir := flag.String("data", "./data/sovereignd", "sovereignd data directory")
	flag.Parse()

	db, err := storage.NewLevelDB(filepath.Join(*dataDir, "state"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open state: %v\n", err)
		os.Exit(1)
	}
	store := state.NewManager(db)
	defer store.Close()

	report, err := audit(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to audit state: %v\n", err)
		os.Exit(1)
	}
	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
	if !report.Healthy {
		os.Exit(2)
	}
}

// issueToken signs an admin JWT for the address held in a keystore file.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "admin keystore file")
	passphraseEnv := fs.String("passphrase-env", "SOVEREIGN_KEYSTORE_PASSPHRASE", "environment variable holding the keystore passphrase")
	secretEnv := fs.String("secret-env", "SOVEREIGND_HMAC_SECRET", "environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "sovereignd", "token issuer")
	audience := fs.String("audience", "", "token audience")
	ttl := fs.Duration("ttl", 15*time.Minute, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	admin, err := crypto.LoadKey(*keystorePath, os.Getenv(*passphraseEnv))
	if err != nil {
		return fmt.Errorf("load keystore: %w", err)
	}
	token, err := server.IssueAdminToken(os.Getenv(*secretEnv), admin.Address(), *issuer, *audience, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
