// cmd/tools/catalog-import/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"opportunity-recommender/internal/app"
	"opportunity-recommender/internal/catalog"
	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/validation"
	"opportunity-recommender/internal/embedding"
	"opportunity-recommender/internal/ingest"
	"opportunity-recommender/internal/models"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	validateFile := validateCmd.String("file", "", "Catalog JSON file (array of records)")

	importFile := importCmd.String("file", "", "Catalog JSON file (array of records)")
	embed := importCmd.Bool("embed", false, "Compute embeddings for records without one")
	collection := importCmd.String("collection", "", "Target table/index/collection (default: catalog.opportunities)")
	configPath := importCmd.String("config", "", "Config file (default: configs/config.yaml lookup)")
	skipInvalid := importCmd.Bool("skip-invalid", false, "Import valid records even when some are invalid")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateFile == "" {
			fmt.Println("Error: -file is required for validate.")
			validateCmd.Usage()
			os.Exit(1)
		}
		valid, invalid, err := readCatalog(*validateFile)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		printReport(len(valid), invalid)
		if len(invalid) > 0 {
			os.Exit(1)
		}
		fmt.Println("Catalog validation passed.")

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			fmt.Println("Error: -file is required for import.")
			importCmd.Usage()
			os.Exit(1)
		}
		valid, invalid, err := readCatalog(*importFile)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		if len(invalid) > 0 {
			printReport(len(valid), invalid)
			if !*skipInvalid {
				fmt.Println("Refusing to import; fix the records or pass -skip-invalid.")
				os.Exit(1)
			}
		}

		report, err := runImport(*configPath, *collection, valid, *embed)
		if err != nil {
			fmt.Printf("Import failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))

	case "help":
		fallthrough
	default:
		help()
	}
}

func readCatalog(path string) ([]models.Opportunity, []validation.RecordResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return validation.ValidateCatalog(data)
}

func printReport(validCount int, invalid []validation.RecordResult) {
	fmt.Printf("%d valid, %d invalid records\n", validCount, len(invalid))
	for _, r := range invalid {
		for _, e := range r.Errors {
			fmt.Printf("  [%d] id=%q %s: %s (%s)\n", r.Index, r.ID, e.Field, e.Message, e.Code)
		}
	}
}

func runImport(configPath, collection string, records []models.Opportunity, embed bool) (ingest.Report, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return ingest.Report{}, err
	}
	if cfg.Catalog.Backend == config.BackendMemory {
		return ingest.Report{}, fmt.Errorf("catalog.backend is memory; add the records to %s instead", cfg.Catalog.SeedFile)
	}
	if collection == "" {
		collection = cfg.Catalog.Opportunities
	}

	log := logger.NewStructured(cfg.Logging.Level, "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backends, err := app.Connect(ctx, cfg, log)
	if err != nil {
		return ingest.Report{}, err
	}
	defer backends.Close(context.Background())

	factory := catalog.NewFactory(cfg.Catalog.Backend, backends.CatalogClients(nil), log)
	if err := factory.EnsureSchema(ctx, collection); err != nil {
		return ingest.Report{}, err
	}

	store, err := factory.Open(collection)
	if err != nil {
		return ingest.Report{}, err
	}

	var emb embedding.Embedder
	if embed {
		emb, err = embedding.New(cfg.Embedding, backends.RedisClient(), log)
		if err != nil {
			return ingest.Report{}, err
		}
	}

	return ingest.NewImporter(emb, log).Import(ctx, store, records, embed)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func help() {
	fmt.Println("Usage: catalog-import <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  validate -file <catalog.json>")
	fmt.Println("  import   -file <catalog.json> [-embed] [-collection <name>] [-config <path>] [-skip-invalid]")
	fmt.Println("  help")
}
