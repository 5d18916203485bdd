package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		sugar.Fatalf("%s: %v", os.Args[1], err)
	}
}

func run(command string, args []string) error {
	switch command {
	case "init-db":
		return runInitDB(args)
	case "export-csv":
		return runExportCSV(args)
	case "export-json":
		return runExportJSON(args)
	case "import":
		return runImport(args)
	case "badge-svg":
		return runBadgeSVG(args)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: formflow-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db       Create PostgreSQL tables and indexes for forms and submissions")
	logger.Info("  export-csv    Write the submissions of a form as CSV")
	logger.Info("  export-json   Write a form and its submissions as a JSON export bundle")
	logger.Info("  import        Load a JSON export bundle into the store")
	logger.Info("  badge-svg     Compose a badge template and write it as SVG")
}
