package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/formflow"
)

func newDataFlags(name, usage string) (*flag.FlagSet, *formflow.Config) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Printf("Usage: formflow-tools %s %s\n", name, usage)
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}
	config := formflow.DefaultConfig()
	registerStorageFlags(flags, config)
	return flags, config
}

func parseFlags(flags *flag.FlagSet, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func runExportCSV(args []string) error {
	flags, config := newDataFlags("export-csv", "-form <id> [options]")
	formID := flags.String("form", "", "id of the form to export")
	out := flags.String("out", "-", "output file, - for stdout")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if *formID == "" {
		return fmt.Errorf("-form is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	store, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := createOutput(*out)
	if err != nil {
		return err
	}
	if err := store.ExportCSV(ctx, *formID, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func runExportJSON(args []string) error {
	flags, config := newDataFlags("export-json", "-form <id> [options]")
	formID := flags.String("form", "", "id of the form to export")
	out := flags.String("out", "-", "output file, - for stdout")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if *formID == "" {
		return fmt.Errorf("-form is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	store, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	bundle, err := store.ExportFormData(ctx, *formID)
	if err != nil {
		return err
	}

	w, err := createOutput(*out)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		w.Close()
		return fmt.Errorf("write export bundle: %w", err)
	}
	return w.Close()
}

func runImport(args []string) error {
	flags, config := newDataFlags("import", "-in <bundle.json> [options]")
	in := flags.String("in", "", "export bundle to import")
	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	var bundle formflow.ExportBundle
	if err := readJSONFile(*in, &bundle); err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	store, err := openStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.ImportFormData(ctx, &bundle)
	if err != nil {
		return err
	}
	fmt.Printf("Imported form %s: %d submissions added, %d already present\n",
		result.FormID, result.SubmissionsImported, result.SubmissionsSkipped)
	return nil
}
