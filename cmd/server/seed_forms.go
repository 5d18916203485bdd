package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

// loadFormsFromDir reads every *.json file of dir as a form schema. Files
// are read in name order; a file without an id takes its base name.
func loadFormsFromDir(dir string) ([]formflow.FormSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read forms directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	forms := make([]formflow.FormSchema, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read form file %s: %w", path, err)
		}
		var form formflow.FormSchema
		if err := json.Unmarshal(data, &form); err != nil {
			return nil, fmt.Errorf("failed to parse form file %s: %w", path, err)
		}
		if form.ID == "" {
			form.ID = strings.TrimSuffix(name, ".json")
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// seedForms saves the forms of dir that are not stored yet. Stored forms
// are left untouched so edits made through the API survive a restart.
func seedForms(ctx context.Context, store formflow.FormStore, dir string) error {
	forms, err := loadFormsFromDir(dir)
	if err != nil {
		return err
	}

	created := 0
	for i := range forms {
		_, err := store.SaveFormIfMatch(ctx, &forms[i], "")
		switch {
		case err == nil:
			created++
		case formflow.IsErrorCode(err, formflow.ErrCodeVersionConflict):
		default:
			return fmt.Errorf("failed to seed form %s: %w", forms[i].ID, err)
		}
	}
	zap.S().Infow("forms seeded", "dir", dir, "found", len(forms), "created", created)
	return nil
}
