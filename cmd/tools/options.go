package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/factory"
	"github.com/lychee-technology/formflow/internal"
)

func registerDatabaseFlags(flags *flag.FlagSet, db *formflow.DatabaseConfig) {
	flags.StringVar(&db.Host, "db-host", getenvDefault("DB_HOST", db.Host), "database host")
	flags.IntVar(&db.Port, "db-port", getenvDefaultInt("DB_PORT", db.Port), "database port")
	flags.StringVar(&db.Database, "db-name", getenvDefault("DB_NAME", db.Database), "database name")
	flags.StringVar(&db.Username, "db-user", getenvDefault("DB_USER", db.Username), "database user")
	flags.StringVar(&db.Password, "db-password", getenvDefault("DB_PASSWORD", db.Password), "database password")
	flags.StringVar(&db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", db.SSLMode), "database sslmode")
	flags.BoolVar(&db.UseIAM, "db-use-iam", getenvDefaultBool("DB_USE_IAM", db.UseIAM), "authenticate with an IAM token instead of a password")
	flags.StringVar(&db.Region, "db-region", getenvDefault("DB_REGION", getenvDefault("AWS_REGION", db.Region)), "region used to sign IAM tokens")
	flags.StringVar(&db.TableNames.Forms, "forms-table", getenvDefault("FORMS_TABLE", db.TableNames.Forms), "forms table name")
	flags.StringVar(&db.TableNames.Submissions, "submissions-table", getenvDefault("SUBMISSIONS_TABLE", db.TableNames.Submissions), "submissions table name")
}

// registerStorageFlags binds the flags that select the form store.
func registerStorageFlags(flags *flag.FlagSet, config *formflow.Config) {
	flags.StringVar(&config.Storage.Driver, "storage", getenvDefault("STORAGE_DRIVER", config.Storage.Driver), "storage driver: kv or postgres")
	flags.StringVar(&config.Storage.Path, "storage-path", getenvDefault("STORAGE_PATH", config.Storage.Path), "buntdb file for the kv driver")
	registerDatabaseFlags(flags, &config.Database)
}

func openStore(ctx context.Context, config *formflow.Config) (formflow.FormStore, error) {
	if config.Storage.Driver == formflow.StorageDriverKV && config.Storage.Path == internal.MemoryPath {
		return nil, fmt.Errorf("the kv driver needs -storage-path to point at a database file")
	}
	return factory.NewFormStoreWithConfig(ctx, config)
}

// createOutput opens path for writing; "-" or "" is stdout.
func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// readFormFiles reads every *.json file of dir as a form, in name order.
// A file without an id takes its base name.
func readFormFiles(dir string) ([]formflow.FormSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read forms directory(%s): %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	forms := make([]formflow.FormSchema, 0, len(files))
	for _, file := range files {
		var form formflow.FormSchema
		if err := readJSONFile(filepath.Join(dir, file), &form); err != nil {
			return nil, err
		}
		if form.ID == "" {
			form.ID = strings.TrimSuffix(file, ".json")
		}
		forms = append(forms, form)
	}
	return forms, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getenvDefaultBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
