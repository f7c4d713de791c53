package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/storage"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect registered identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities in registration order",
	RunE:  runIdentitiesList,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)

	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentityRow is one line of the identity listing.
type IdentityRow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RegisteredAt string `json:"registered_at"`
	Snapshot     bool   `json:"snapshot"`
	// DescriptorOK is false for a missing or malformed descriptor, which
	// the matcher treats as a zero vector.
	DescriptorOK bool `json:"descriptor_ok"`
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	identities, err := db.ListIdentities(context.Background())
	if err != nil {
		return err
	}

	rows := make([]IdentityRow, 0, len(identities))
	for _, ident := range identities {
		_, decodeErr := descriptor.DecodeStrict(ident.Descriptor)
		rows = append(rows, IdentityRow{
			ID:           ident.ID.String(),
			Name:         ident.Name,
			Email:        ident.Email,
			RegisteredAt: ident.RegisteredAt.UTC().Format(time.RFC3339),
			Snapshot:     ident.SnapshotKey != "",
			DescriptorOK: decodeErr == nil,
		})
	}

	if jsonOutput {
		return outputJSON(rows)
	}

	for _, r := range rows {
		flag := ""
		if !r.DescriptorOK {
			flag = "  [bad descriptor]"
		}
		fmt.Printf("%s  %-24s %-32s %s%s\n", r.ID, r.Name, r.Email, r.RegisteredAt, flag)
	}
	fmt.Printf("\nTotal: %d\n", len(rows))
	return nil
}
