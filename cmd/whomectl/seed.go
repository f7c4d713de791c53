package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/whome/internal/catalog"
	"github.com/your-org/whome/internal/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed [menu|products]",
	Short: "Seed the menu or product catalog",
	Long: `Insert the default coffee shop catalog into the menu_items or products
table. A table that already holds rows is skipped unless --force is given.

Examples:
  # Seed the checkout menu from the built-in catalog
  whomectl seed menu

  # Seed products from a custom catalog file
  whomectl seed products --file catalog.yaml`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"menu", "products"},
	RunE:      runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("file", "", "Catalog YAML file (defaults to the built-in catalog)")
	seedCmd.Flags().Bool("force", false, "Seed even when the table is not empty")
}

func runSeed(cmd *cobra.Command, args []string) error {
	target := args[0]
	if target != "menu" && target != "products" {
		return fmt.Errorf("unknown seed target %q (want menu or products)", target)
	}
	force := mustGetBool(cmd, "force")

	c, err := catalog.Load(mustGetString(cmd, "file"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	var created int
	if target == "menu" {
		created, err = catalog.SeedMenu(ctx, db, c, force)
	} else {
		created, err = catalog.SeedProducts(ctx, db, c, force)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d %s\n", created, target)
	return nil
}
