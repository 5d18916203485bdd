package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/internal"
)

type badgeOptions struct {
	templatePath string
	dataPath     string
	formID       string
	submissionID string
	out          string
	layoutJSON   bool
}

func runBadgeSVG(args []string) error {
	flags := flag.NewFlagSet("badge-svg", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: formflow-tools badge-svg -template <template.json> [-data <attendee.json> | -form <id> -submission <id>] [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	config := formflow.DefaultConfig()
	registerStorageFlags(flags, config)

	opts := badgeOptions{}
	flags.StringVar(&opts.templatePath, "template", "", "badge template JSON file")
	flags.StringVar(&opts.dataPath, "data", "", "attendee values JSON file")
	flags.StringVar(&opts.formID, "form", "", "read attendee values from a submission of this form")
	flags.StringVar(&opts.submissionID, "submission", "", "submission id used with -form")
	flags.StringVar(&opts.out, "out", "-", "output file, - for stdout")
	flags.BoolVar(&opts.layoutJSON, "layout", false, "write the composed layout as JSON instead of SVG")

	if ok, err := parseFlags(flags, args); !ok {
		return err
	}
	if opts.templatePath == "" {
		return fmt.Errorf("-template is required")
	}

	var tmpl formflow.BadgeTemplate
	if err := readJSONFile(opts.templatePath, &tmpl); err != nil {
		return err
	}

	data, err := badgeData(config, opts)
	if err != nil {
		return err
	}

	return writeBadge(config.Badge, tmpl, data, opts)
}

func badgeData(config *formflow.Config, opts badgeOptions) (map[string]any, error) {
	switch {
	case opts.formID != "":
		ctx, cancel := commandContext()
		defer cancel()
		store, err := openStore(ctx, config)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return submissionValues(ctx, store, opts.formID, opts.submissionID)
	case opts.dataPath != "":
		var data map[string]any
		if err := readJSONFile(opts.dataPath, &data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return map[string]any{}, nil
	}
}

func submissionValues(ctx context.Context, store formflow.FormStore, formID, submissionID string) (map[string]any, error) {
	if _, err := store.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	for _, sub := range store.GetFormSubmissions(ctx, formID) {
		if sub.ID != submissionID {
			continue
		}
		data := map[string]any{"id": sub.ID}
		for k, v := range sub.Data {
			data[k] = v
		}
		return data, nil
	}
	return nil, fmt.Errorf("submission %q not found in form %s", submissionID, formID)
}

func writeBadge(cfg formflow.BadgeConfig, tmpl formflow.BadgeTemplate, data map[string]any, opts badgeOptions) error {
	composer, err := internal.NewBadgeComposer(cfg)
	if err != nil {
		return err
	}
	defer composer.Close()

	layout, err := composer.Compose(tmpl, data)
	if err != nil {
		return err
	}
	for _, warning := range layout.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	w, err := createOutput(opts.out)
	if err != nil {
		return err
	}
	if opts.layoutJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(layout)
	} else {
		err = internal.RenderSVG(w, layout)
	}
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
