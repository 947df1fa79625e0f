package importtags

import (
	"fmt"

	"github.com/spf13/cobra"

	"meshbridge/internal/application/tag"
	"meshbridge/internal/infrastructure/config"
	"meshbridge/internal/infrastructure/database"
	"meshbridge/internal/infrastructure/repository"
	"meshbridge/internal/shared/db"
	"meshbridge/internal/shared/logger"
)

var (
	configPath string
	filePath   string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-tags",
		Short: "Bulk import node tags",
		Long: `Apply a JSON tag file to the store. Each record carries a full public key
and a tag map; nodes are created on first write and existing tags are updated
in place. Records are applied independently, so one bad entry never rolls
back the rest.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the JSON tag file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Options{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.OutputPath,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	gormDB := database.Get()
	service := tag.NewService(
		repository.NewNodeRepository(gormDB, log),
		repository.NewNodeTagRepository(gormDB, log),
		db.NewTransactionManager(gormDB),
		log,
	)
	importer := tag.NewImporter(service, log)

	summary, err := importer.ImportPath(cmd.Context(), filePath)
	if err != nil {
		return err
	}

	fmt.Printf("\nTag import summary:\n")
	fmt.Printf("  Created: %d\n", summary.Created)
	fmt.Printf("  Updated: %d\n", summary.Updated)
	fmt.Printf("  Failed:  %d\n", summary.Failed)
	for _, e := range summary.Errors {
		if e.TagKey != "" {
			fmt.Printf("  - %s %s: %s\n", e.PublicKey, e.TagKey, e.Reason)
		} else {
			fmt.Printf("  - %s: %s\n", e.PublicKey, e.Reason)
		}
	}

	return nil
}
