package main

import (
	"context"
	"net/http"
	"time"

	"github.com/lychee-technology/formflow"
	"github.com/lychee-technology/formflow/factory"
	"github.com/lychee-technology/formflow/internal"
	"github.com/lychee-technology/formflow/internal/analytics"
	"github.com/lychee-technology/formflow/internal/archive"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type summarizer interface {
	Summarize(ctx context.Context, form *formflow.FormSchema, submissions []formflow.Submission) (*formflow.SubmissionSummary, error)
}

type formArchiver interface {
	ArchiveForm(ctx context.Context, store archive.Exporter, formID string) (*archive.Result, error)
}

// Server represents the HTTP server in front of a FormStore
type Server struct {
	store     formflow.FormStore
	validator *internal.Validator
	renderer  *internal.Renderer
	composer  *internal.BadgeComposer
	analytics summarizer
	archiver  formArchiver
	config    *formflow.Config
	mux       *http.ServeMux
}

// NewServer creates a new Server instance. The analytics engine and the
// archiver are optional; their routes answer 503 when they are nil.
func NewServer(store formflow.FormStore, cfg *formflow.Config, analytics summarizer, archiver formArchiver) (*Server, error) {
	renderer, err := internal.NewRenderer("")
	if err != nil {
		return nil, err
	}
	composer, err := internal.NewBadgeComposer(cfg.Badge)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:     store,
		validator: internal.NewValidator(),
		renderer:  renderer,
		composer:  composer,
		analytics: analytics,
		archiver:  archiver,
		config:    cfg,
		mux:       http.NewServeMux(),
	}, nil
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	// API routes - use custom path matching in handlers
	s.mux.HandleFunc("/api/v1/forms", s.handleForms)
	s.mux.HandleFunc("/api/v1/forms/", s.apiHandler)
	s.mux.HandleFunc("/api/v1/import", s.handleImport)
	s.mux.HandleFunc("/api/v1/data", s.handleClearData)
	s.mux.HandleFunc("/api/v1/badges/layout", s.handleBadgeLayout)
	s.mux.HandleFunc("/api/v1/badges/svg", s.handleBadgeSVG)
	s.mux.HandleFunc("/forms/", s.handleFormPage)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.config.Metrics.Enabled {
		s.mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) Close() error {
	return s.composer.Close()
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx := context.Background()
	config := loadConfig()

	store, err := factory.NewFormStoreWithConfig(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to create form store: %v", err)
	}
	defer store.Close()

	if formsDir := getEnv("FORMS_DIR", ""); formsDir != "" {
		if err := seedForms(ctx, store, formsDir); err != nil {
			sugar.Fatalf("failed to seed forms: %v", err)
		}
	}

	var engine summarizer
	if config.Analytics.Enabled {
		e, err := analytics.Open(ctx, config.Analytics)
		if err != nil {
			sugar.Warnw("analytics disabled", "error", err)
		} else {
			defer e.Close()
			engine = e
		}
	}

	var archiver formArchiver
	if config.Archive.Enabled {
		a, err := archive.New(ctx, config.Archive)
		if err != nil {
			sugar.Fatalf("failed to create archiver: %v", err)
		}
		archiver = a
	}

	server, err := NewServer(store, config, engine, archiver)
	if err != nil {
		sugar.Fatalf("failed to create server: %v", err)
	}
	defer server.Close()
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig fills the default configuration from environment variables.
func loadConfig() *formflow.Config {
	config := formflow.DefaultConfig()

	config.Storage.Driver = getEnv("STORAGE_DRIVER", config.Storage.Driver)
	config.Storage.Path = getEnv("STORAGE_PATH", config.Storage.Path)

	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.Port = getEnvInt("DB_PORT", config.Database.Port)
	config.Database.Database = getEnv("DB_NAME", config.Database.Database)
	config.Database.Username = getEnv("DB_USER", config.Database.Username)
	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)
	config.Database.SSLMode = getEnv("DB_SSL_MODE", config.Database.SSLMode)
	config.Database.UseIAM = getEnvBool("DB_USE_IAM", config.Database.UseIAM)
	config.Database.Region = getEnv("DB_REGION", getEnv("AWS_REGION", config.Database.Region))
	config.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", config.Database.MaxConnections)
	config.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", config.Database.MaxIdleConns)
	config.Database.ConnMaxLifetime = time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", int(config.Database.ConnMaxLifetime.Seconds()))) * time.Second
	config.Database.ConnMaxIdleTime = time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", int(config.Database.ConnMaxIdleTime.Seconds()))) * time.Second
	config.Database.Timeout = time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", int(config.Database.Timeout.Seconds()))) * time.Second
	config.Database.TableNames.Forms = getEnv("FORMS_TABLE", config.Database.TableNames.Forms)
	config.Database.TableNames.Submissions = getEnv("SUBMISSIONS_TABLE", config.Database.TableNames.Submissions)

	config.Archive.Bucket = getEnv("S3_BUCKET", config.Archive.Bucket)
	config.Archive.Enabled = config.Archive.Bucket != ""
	config.Archive.Prefix = getEnv("S3_PREFIX", config.Archive.Prefix)
	config.Archive.Region = getEnv("S3_REGION", getEnv("AWS_REGION", config.Archive.Region))
	config.Archive.Endpoint = getEnv("S3_ENDPOINT", config.Archive.Endpoint)
	config.Archive.AccessKey = getEnv("S3_ACCESS_KEY", config.Archive.AccessKey)
	config.Archive.SecretKey = getEnv("S3_SECRET_KEY", config.Archive.SecretKey)
	config.Archive.ForcePathStyle = getEnvBool("S3_FORCE_PATH_STYLE", config.Archive.ForcePathStyle)

	config.Events.Driver = getEnv("EVENTS_DRIVER", config.Events.Driver)
	config.Events.NATSURL = getEnv("NATS_URL", config.Events.NATSURL)
	if brokers := getEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		config.Events.KafkaBrokers = brokers
	}
	config.Events.Topic = getEnv("EVENTS_TOPIC", config.Events.Topic)

	config.Analytics.Enabled = getEnvBool("ANALYTICS_ENABLED", config.Analytics.Enabled)
	config.Analytics.DSN = getEnv("ANALYTICS_DSN", config.Analytics.DSN)
	config.Analytics.MemoryLimit = getEnv("ANALYTICS_MEMORY_LIMIT", config.Analytics.MemoryLimit)

	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)
	return config
}
