package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"packsight/src/core/pipeline"
	"packsight/src/infrastructure/gate"
	"packsight/src/infrastructure/queue"
	"packsight/src/storage/postgres/jobctrl"
	"packsight/src/storage/postgres/runctrl"
	"packsight/src/storage/postgres/stepctrl"
)

var (
	submitKind       string
	submitParams     string
	submitCredential string
	submitWatch      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a pipeline job from the command line",
	Long: `Submit creates a job of the given kind and hands it to the worker pool.
Gated kinds need --credential, which goes through init and start; other
kinds are enqueued directly.`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	settingDefaultConfig()

	submitCmd.Flags().StringVarP(&submitKind, "kind", "k", "", "Job kind (required)")
	submitCmd.Flags().StringVarP(&submitParams, "params", "p", "{}", "Job params as JSON")
	submitCmd.Flags().StringVarP(&submitCredential, "credential", "c", "", "Credential for gated kinds")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "Poll the job until it is terminal")
	submitCmd.MarkFlagRequired("kind")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if !json.Valid([]byte(submitParams)) {
		return fmt.Errorf("params is not valid JSON")
	}

	ctx := context.Background()

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

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	publisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	// Initialize lifecycle service
	jobService, err := jobctrl.NewJobService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job service: %v", err)
	}
	stepService, err := stepctrl.NewStepService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize step service: %v", err)
	}
	runService := runctrl.NewRunService(db)

	var domains []string
	if raw := viper.GetString("gate.allowed_domains"); raw != "" {
		domains = strings.Split(raw, ",")
	}
	svc := pipeline.NewService(
		jobService,
		stepService,
		runService,
		pipeline.DefaultRegistry(),
		queue.NewPublisher(publisher),
		gate.NewEmailGate(domains),
	)

	params := json.RawMessage(submitParams)

	var job *pipeline.Job
	if submitCredential != "" {
		job, err = svc.Init(ctx, submitKind, params)
		if err != nil {
			return fmt.Errorf("failed to init job: %w", err)
		}
		if err := svc.Start(ctx, job.ID, submitCredential); err != nil {
			return fmt.Errorf("failed to start job %d: %w", job.ID, err)
		}
	} else {
		job, err = svc.Run(ctx, submitKind, params)
		if err != nil {
			return fmt.Errorf("failed to enqueue job: %w", err)
		}
	}

	fmt.Printf("Enqueued job %d (run %s)\n", job.ID, job.RunID)

	if submitWatch {
		return watchJob(ctx, jobService, job.ID)
	}
	return nil
}
