// keygen mints an extension API key for a user and stores its SHA-256 hash.
// The plaintext key is printed exactly once; only the hash ever touches the
// database, so a lost key cannot be recovered - mint a new one instead.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trackio.app/trackio/core/config"
	"trackio.app/trackio/core/db"
	"trackio.app/trackio/internal/model"
	"trackio.app/trackio/internal/service"
	"trackio.app/trackio/internal/store"
)

const keyPrefix = "trk_"

func main() {
	var userID string

	root := &cobra.Command{
		Use:           "keygen",
		Short:         "Mint an extension API key for a user",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ServiceTypeServer)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			database, err := db.New(ctx, cfg.DB)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer database.Close()

			key, err := mintKey()
			if err != nil {
				return err
			}

			stores := store.NewStores(database.Pool())
			err = stores.APIKeys().Create(ctx, &model.APIKey{
				HashedKey: service.HashAPIKey(key),
				UserID:    userID,
			})
			if err != nil {
				return fmt.Errorf("store api key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", key)
			return nil
		},
	}

	root.Flags().StringVar(&userID, "user-id", "", "user the key belongs to")
	root.MarkFlagRequired("user-id")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func mintKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(raw), nil
}
