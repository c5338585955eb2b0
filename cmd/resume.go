package cmd

import (
	"context"
	"fmt"

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
	resumeSteps string
	resumeWatch bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a run from a step range",
	Long: `Resume creates a new job on an existing run restricted to the given
step range. Outputs of steps completed in earlier jobs of the run are
reused, never recomputed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringVarP(&resumeSteps, "steps", "s", "", "Step range to execute, e.g. 5-7 (required)")
	resumeCmd.Flags().BoolVarP(&resumeWatch, "watch", "w", false, "Poll the job until it is terminal")
	resumeCmd.MarkFlagRequired("steps")
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]
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

	svc := pipeline.NewService(
		jobService,
		stepService,
		runService,
		pipeline.DefaultRegistry(),
		queue.NewPublisher(publisher),
		gate.NewEmailGate(nil),
	)

	job, err := svc.Resume(ctx, runID, resumeSteps)
	if err != nil {
		return fmt.Errorf("failed to resume run %s: %w", runID, err)
	}

	fmt.Printf("Enqueued job %d for run %s, steps %s\n", job.ID, job.RunID, job.StepRange)

	if resumeWatch {
		return watchJob(ctx, jobService, job.ID)
	}
	return nil
}
