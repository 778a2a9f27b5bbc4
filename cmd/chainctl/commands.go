package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainguard/tracker/internal/indexer"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
	"github.com/chainguard/tracker/internal/tracker"
)

// verifyCmd checks hashes, proof of work and linkage of the whole chain
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks := services.Tracker.Blocks()
		if err := services.Tracker.Verify(); err != nil {
			var chainErr *ledger.ChainError
			if errors.As(err, &chainErr) {
				fmt.Fprintf(os.Stderr, "Ledger invalid at block %d of %d: %s\n", chainErr.Index, len(blocks), chainErr.Reason)
			}
			return err
		}
		fmt.Printf("Ledger valid: %d blocks, head %s\n", len(blocks), blocks[len(blocks)-1].Hash)
		return nil
	},
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Print every block",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(services.Tracker.Blocks())
	},
}

var customerID string

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the projected state of every product",
	RunE: func(cmd *cobra.Command, args []string) error {
		if customerID != "" {
			return printJSON(services.Tracker.CustomerProducts(cmd.Context(), customerID))
		}
		return printJSON(services.Tracker.Products(cmd.Context()))
	},
}

var productCmd = &cobra.Command{
	Use:   "product [uid]",
	Short: "Show one product with its refund eligibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := services.Tracker.Product(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(struct {
			indexer.ProductState
			Refund lifecycle.Eligibility `json:"refundEligibility"`
		}{p, p.RefundEligibility()})
	},
}

var registration tracker.Registration

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a product and mine its genesis transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := services.Tracker.RegisterProduct(cmd.Context(), registration)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var (
	update  tracker.StatusUpdate
	roleArg string
)

var updateCmd = &cobra.Command{
	Use:   "update [uid] [status]",
	Short: "Move a product to its next lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := lifecycle.ParseStatus(args[1])
		if err != nil {
			return err
		}
		role, err := lifecycle.ParseRole(roleArg)
		if err != nil {
			return err
		}
		u := update
		u.UID, u.Next, u.Role = args[0], next, role
		p, err := services.Tracker.UpdateStatus(cmd.Context(), u)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

// importCmd appends transactions exported from another node in one block
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a transaction or an array of transactions from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		txs, err := services.Importer.Transactions(data)
		if err != nil {
			return err
		}
		block, err := services.Tracker.Import(cmd.Context(), txs)
		if err != nil {
			return err
		}
		fmt.Printf("Mined block %d (%s) with %d transactions\n", block.Index, block.Hash, len(block.Data))
		return nil
	},
}

var submitRole string

// submitCmd mines a single transaction, checking its transition when a role
// is given
var submitCmd = &cobra.Command{
	Use:   "mine [file]",
	Short: "Mine one transaction from a JSON file into a new block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		txs, err := services.Importer.Transactions(data)
		if err != nil {
			return err
		}
		if len(txs) != 1 {
			return fmt.Errorf("expected one transaction, got %d", len(txs))
		}
		var role lifecycle.Role
		if submitRole != "" {
			if role, err = lifecycle.ParseRole(submitRole); err != nil {
				return err
			}
		}
		block, err := services.Tracker.Submit(cmd.Context(), txs[0], role)
		if err != nil {
			return err
		}
		fmt.Printf("Mined block %d (%s) nonce %d\n", block.Index, block.Hash, block.Nonce)
		return nil
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List recorded return decisions per order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(services.Tracker.Orders())
	},
}

// mirrorCmd brings the relational mirror up to the ledger head once
var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Catch the relational mirror up with the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if services.DB == nil {
			return errors.New("relational mirror is not configured, set CHAINGUARD_DATABASE_URL")
		}
		n, err := indexer.NewSync(services.DB, services.Backend).CatchUp(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Mirrored %d blocks\n", n)
		return nil
	},
}

func init() {
	productsCmd.Flags().StringVar(&customerID, "customer", "", "Only products sold to this customer id")

	flags := registerCmd.Flags()
	flags.StringVar(&registration.Name, "name", "", "Product name")
	flags.StringVar(&registration.Category, "category", "", "Product category")
	flags.StringVar(&registration.BatchNumber, "batch", "", "Batch number")
	flags.StringVar(&registration.Model, "model", "", "Model")
	flags.StringVar(&registration.SerialNumber, "serial", "", "Serial number")
	flags.StringVar(&registration.Warranty, "warranty", "", "Warranty")
	flags.StringVar(&registration.Actor, "actor", "", "Manufacturer name")
	flags.BoolVar(&registration.Simulate, "simulate", false, "Run the full demo lifecycle after registering")

	flags = updateCmd.Flags()
	flags.StringVar(&roleArg, "role", "", "Role performing the update")
	flags.StringVar(&update.Actor, "actor", "", "Actor name")
	flags.StringVar(&update.Location, "location", "", "Location")
	flags.StringVar(&update.Notes, "notes", "", "Notes")
	flags.StringVar(&update.CustomerID, "customer", "", "Customer id for a sale")
	flags.StringVar(&update.SalePrice, "price", "", "Sale price")

	submitCmd.Flags().StringVar(&submitRole, "role", "", "Check the status change against this role")
}
