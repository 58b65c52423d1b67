package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sequencer_backend/internal/trigger"
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage trigger API keys",
	Long:  "Create, list and revoke the API keys that authenticate trigger callers. Creating the first key requires this command; the HTTP surface needs a key to reach.",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a trigger API key",
	Long:  "Create a new API key. The plaintext key is printed once and never stored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		plaintext, hash, prefix, err := trigger.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}

		repo := trigger.NewRepository(rt.pool)
		key, err := repo.Create(ctx, args[0], hash, prefix)
		if err != nil {
			return fmt.Errorf("store key: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Created key %q (ID: %s). Store the key now; it cannot be shown again.\n", key.Name, key.ID)
		fmt.Fprintln(os.Stdout, plaintext)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trigger API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		keys, err := trigger.NewRepository(rt.pool).List(ctx)
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}

		if len(keys) == 0 {
			fmt.Fprintln(os.Stdout, "No API keys found.")
			return nil
		}

		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			status := "revoked"
			if key.IsActive {
				status = "active"
			}
			rows = append(rows, []string{
				key.ID.String(),
				key.Name,
				key.KeyPrefix,
				status,
				formatTimestamp(key.CreatedAt),
			})
		}
		return writeTable(os.Stdout, []string{"ID", "NAME", "PREFIX", "STATUS", "CREATED"}, rows)
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke a trigger API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		keyID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid key id: %w", err)
		}

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := trigger.NewRepository(rt.pool).Revoke(ctx, keyID); err != nil {
			return fmt.Errorf("revoke key: %w", err)
		}

		fmt.Fprintln(os.Stdout, "API key revoked.")
		return nil
	},
}
