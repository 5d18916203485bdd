package factory

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/internal"
	"github.com/lychee-technology/formflow/internal/events"
	"go.uber.org/zap"
)

// NewFormStoreWithConfig creates the FormStore selected by config.Storage,
// publishing submission events through the driver named in config.Events.
// This is the primary way for external projects to create a FormStore.
//
// Usage:
//
//	config := formflow.DefaultConfig()
//	config.Storage.Path = "/var/lib/formflow/forms.db"
//	store, err := factory.NewFormStoreWithConfig(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer store.Close()
func NewFormStoreWithConfig(ctx context.Context, config *formflow.Config) (formflow.FormStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	publisher, err := events.New(config.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	switch config.Storage.Driver {
	case formflow.StorageDriverKV:
		repo, err := internal.OpenKVFormRepository(config.Storage.Path)
		if err != nil {
			publisher.Close()
			return nil, err
		}
		zap.S().Infow("form store ready", "driver", config.Storage.Driver, "path", config.Storage.Path, "events", config.Events.Driver)
		return internal.NewFormStore(repo, publisher), nil

	case formflow.StorageDriverPostgres:
		pool, err := NewDatabasePool(ctx, config.Database)
		if err != nil {
			publisher.Close()
			return nil, err
		}
		repo, err := internal.NewPostgresFormRepository(pool, config.Database.TableNames)
		if err != nil {
			pool.Close()
			publisher.Close()
			return nil, err
		}
		zap.S().Infow("form store ready", "driver", config.Storage.Driver, "host", config.Database.Host, "events", config.Events.Driver)
		return &pooledStore{FormStore: internal.NewFormStore(repo, publisher), pool: pool}, nil

	default:
		publisher.Close()
		return nil, fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}
}

// pooledStore closes the connection pool after the store.
type pooledStore struct {
	formflow.FormStore
	pool *pgxpool.Pool
}

func (s *pooledStore) Close() error {
	err := s.FormStore.Close()
	s.pool.Close()
	return err
}

// NewDatabasePool creates a PostgreSQL connection pool. With UseIAM every
// new connection authenticates with a freshly generated DSQL token instead
// of the configured password.
func NewDatabasePool(ctx context.Context, cfg formflow.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := newPoolConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func connString(cfg formflow.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

func newPoolConfig(ctx context.Context, cfg formflow.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	if cfg.UseIAM {
		hook, err := iamBeforeConnect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		poolConfig.BeforeConnect = hook
	}
	return poolConfig, nil
}

func iamBeforeConnect(ctx context.Context, cfg formflow.DatabaseConfig) (func(context.Context, *pgx.ConnConfig) error, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return fmt.Errorf("generate dsql auth token: %w", err)
		}
		cc.Password = token
		return nil
	}, nil
}
