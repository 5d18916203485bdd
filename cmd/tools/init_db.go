package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/factory"
	"github.com/lychee-technology/formflow/internal"
)

type initDBOptions struct {
	database formflow.DatabaseConfig
	formsDir string
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: formflow-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{database: formflow.DefaultConfig().Database}
	registerDatabaseFlags(flags, &opts.database)
	flags.StringVar(&opts.formsDir, "forms-dir", getenvDefault("FORMS_DIR", ""), "Directory containing form JSON files to register (optional)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	pool, err := factory.NewDatabasePool(ctx, opts.database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := withTx(ctx, pool, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, opts.database.TableNames)
	}); err != nil {
		return err
	}

	if opts.formsDir != "" {
		repo, err := internal.NewPostgresFormRepository(pool, opts.database.TableNames)
		if err != nil {
			return err
		}
		if err := registerForms(ctx, internal.NewFormStore(repo, nil), opts.formsDir); err != nil {
			return err
		}
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func ensureTables(ctx context.Context, tx pgx.Tx, tables formflow.TableNames) error {
	for _, stmt := range internal.FormTablesDDL(tables) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure form tables: %w", err)
		}
	}
	fmt.Printf("Created forms table: %s\n", tables.Forms)
	fmt.Printf("Created submissions table: %s\n", tables.Submissions)
	return nil
}

// registerForms saves the form files of dir that are not stored yet.
func registerForms(ctx context.Context, store formflow.FormStore, dir string) error {
	forms, err := readFormFiles(dir)
	if err != nil {
		return err
	}
	if len(forms) == 0 {
		fmt.Printf("No form files found, dir: %s\n", dir)
		return nil
	}

	for i := range forms {
		_, err := store.SaveFormIfMatch(ctx, &forms[i], "")
		switch {
		case err == nil:
			fmt.Printf("Registered form, id: %s\n", forms[i].ID)
		case formflow.IsErrorCode(err, formflow.ErrCodeVersionConflict):
			fmt.Printf("Form already exists, id: %s\n", forms[i].ID)
		default:
			return fmt.Errorf("register form %s: %w", forms[i].ID, err)
		}
	}

	fmt.Printf("Registered forms from directory, count: %d, dir: %s\n", len(forms), dir)
	return nil
}

func withTx(ctx context.Context, conn txBeginner, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
