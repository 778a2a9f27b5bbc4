package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainguard/tracker/internal/app"
	"github.com/chainguard/tracker/pkg/config"
	"github.com/chainguard/tracker/pkg/logging"
)

var (
	withMirror bool

	services *app.App
)

// rootCmd is the ledger operator CLI. It works on the same ledger backend
// the server is configured with.
var rootCmd = &cobra.Command{
	Use:               "chainctl",
	Short:             "ChainGuard ledger operator tool",
	Long:              `chainctl inspects, verifies and appends to the ChainGuard product ledger.`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if services != nil {
			services.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&withMirror, "mirror", false, "Also write appended blocks to the relational mirror")

	rootCmd.AddCommand(verifyCmd, blocksCmd, productsCmd, productCmd, registerCmd, updateCmd,
		importCmd, submitCmd, ordersCmd, mirrorCmd)
}

func initialize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	services, err = app.New(cmd.Context(), cfg, withMirror || cmd.Name() == "mirror")
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
