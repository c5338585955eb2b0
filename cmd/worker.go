package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"packsight/src/core/analysisflow"
	"packsight/src/core/discoveryflow"
	"packsight/src/core/pipeline"
	"packsight/src/core/rebrandflow"
	"packsight/src/core/steps"
	"packsight/src/fsutil"
	"packsight/src/infrastructure/integrations/ollama"
	"packsight/src/infrastructure/integrations/webfetch"
	"packsight/src/infrastructure/queue"
	"packsight/src/log"
	"packsight/src/storage/minioctrl"
	"packsight/src/storage/postgres/jobctrl"
	"packsight/src/storage/postgres/productctrl"
	"packsight/src/storage/postgres/stepctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the pipeline worker pool",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	if viper.GetString("log.mode") == "production" {
		log.UseProduction()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP subscriber. The broker never requeues on nack;
	// redelivery is owned by the retry middleware.
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(
		subscriberConfig,
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize storage services
	jobService, err := jobctrl.NewJobService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job service: %v", err)
	}
	stepService, err := stepctrl.NewStepService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize step service: %v", err)
	}
	productService, err := productctrl.NewProductService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize product service: %v", err)
	}

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware. Retried infrastructure failures that exhaust the
	// retry budget are recorded as terminal job failures before the
	// message is dropped.
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		queue.TerminalFailure(jobService),
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize blob stores for source assets and step artifacts
	assets, artifacts, err := newBlobStores(ctx)
	if err != nil {
		return err
	}

	// Initialize OllamaClient and provider
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 5 * time.Minute,
	})
	provider := ollama.NewProvider(
		ollamaClient,
		viper.GetString("ollama.model"),
		viper.GetString("ollama.vision_model"),
	)

	// Initialize web fetcher
	fetcher := webfetch.NewClient(&http.Client{Timeout: 30 * time.Second})

	// Initialize flows and bind them to the registered pipeline kinds
	discovery := discoveryflow.NewDiscoveryFlow(provider, fetcher)
	analysis := analysisflow.NewAnalysisFlow(provider)
	rebranding := rebrandflow.NewRebrandFlow(provider)
	sets := steps.Sets(discovery, analysis, rebranding, fetcher, assets, artifacts, productService)

	executor, err := pipeline.NewExecutor(jobService, stepService, pipeline.DefaultRegistry(), sets)
	if err != nil {
		return fmt.Errorf("failed to build executor: %v", err)
	}

	// Register one handler per worker slot; all slots compete on the
	// shared job queue
	concurrency := viper.GetInt("worker.concurrency")
	queue.RegisterHandlers(router, amqpSubscriber, executor, concurrency)

	// Run the router until interrupted
	log.Info("worker pool running", "concurrency", concurrency)
	if err := router.Run(ctx); err != nil {
		return err
	}

	log.Info("Router stopped")
	return nil
}

// newBlobStores builds the asset and artifact stores for the configured
// backend: MinIO buckets by default, local directories for development.
func newBlobStores(ctx context.Context) (assets, artifacts fsutil.BlobStore, err error) {
	if viper.GetString("storage.backend") == "local" {
		root := viper.GetString("storage.local_dir")
		assets, err = fsutil.NewLocalBlobStore(filepath.Join(root, "assets"))
		if err != nil {
			return nil, nil, err
		}
		artifacts, err = fsutil.NewLocalBlobStore(filepath.Join(root, "artifacts"))
		if err != nil {
			return nil, nil, err
		}
		return assets, artifacts, nil
	}

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize minio service: %v", err)
	}

	assets, err = minioctrl.NewStore(ctx, minioService, minioctrl.AssetsBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize asset store: %v", err)
	}
	artifacts, err = minioctrl.NewStore(ctx, minioService, minioctrl.ArtifactsBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize artifact store: %v", err)
	}
	return assets, artifacts, nil
}
