package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"packsight/src/core/pipeline"
	"packsight/src/storage/postgres/jobctrl"
)

const watchPollInterval = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Poll a job until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed job id %q", args[0])
	}

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

	jobService, err := jobctrl.NewJobService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job service: %v", err)
	}

	return watchJob(cmd.Context(), jobService, jobID)
}

// watchJob polls the job record and renders its progress until the job
// is terminal.
func watchJob(ctx context.Context, jobs *jobctrl.JobService, jobID int64) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("queued"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
	)

	for {
		job, err := jobs.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to load job %d: %w", jobID, err)
		}
		if job == nil {
			return fmt.Errorf("job %d not found", jobID)
		}

		status := pipeline.StatusOf(job)
		bar.Describe(status.Status)
		bar.Set(status.Progress)

		if job.State.Terminal() {
			bar.Finish()
			fmt.Println()

			if job.State == pipeline.StateFailure {
				msg := "unknown error"
				if job.Error != nil {
					msg = *job.Error
				}
				return fmt.Errorf("job %d failed: %s", jobID, msg)
			}

			fmt.Println("Result:")
			fmt.Println("-------------------")
			fmt.Println(string(job.Result))
			fmt.Println("-------------------")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watchPollInterval):
		}
	}
}
