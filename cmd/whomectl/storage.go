package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/whome/internal/storage"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Blob store utilities",
}

var storageCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Upload, read back and delete a probe object",
	RunE:  runStorageCheck,
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageCheckCmd)

	storageCheckCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStorageCheck(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var res storage.StorageCheck
	store, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		res = storage.CheckStorage(ctx, nil, cfg.MinIO.Bucket)
	} else {
		res = storage.CheckStorage(ctx, store, store.Bucket())
	}

	if jsonOutput {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		fmt.Printf("Bucket:     %s\n", res.Bucket)
		fmt.Printf("Configured: %t\n", res.IsConfigured)
		fmt.Printf("Upload:     %t\n", res.CanUpload)
		fmt.Printf("Read:       %t\n", res.CanRead)
		fmt.Printf("Delete:     %t\n", res.CanDelete)
		if res.Error != "" {
			fmt.Printf("Error:      %s\n", res.Error)
		}
	}

	if !res.CanDelete {
		return errors.New("storage check failed")
	}
	return nil
}
