/*
Copyright © 2025 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "packsight/handler/http"
	"packsight/src/core/pipeline"
	"packsight/src/core/rebrand"
	"packsight/src/infrastructure/gate"
	"packsight/src/infrastructure/queue"
	"packsight/src/log"
	"packsight/src/storage/postgres/jobctrl"
	"packsight/src/storage/postgres/productctrl"
	"packsight/src/storage/postgres/runctrl"
	"packsight/src/storage/postgres/sessionctrl"
	"packsight/src/storage/postgres/stepctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the packsight API server",
	Long:  `The serve command starts an HTTP server that exposes the job lifecycle and rebrand session APIs.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	if viper.GetString("log.mode") == "production" {
		log.UseProduction()
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
		log.Error(err, "Failed to connect to database")
		return
	}

	// Initialize AMQP publisher for handing jobs to the worker pool
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	// Initialize storage services
	jobService, err := jobctrl.NewJobService(db)
	if err != nil {
		log.Error(err, "Failed to initialize job service")
		return
	}
	stepService, err := stepctrl.NewStepService(db)
	if err != nil {
		log.Error(err, "Failed to initialize step service")
		return
	}
	runService := runctrl.NewRunService(db)
	sessionService := sessionctrl.NewSessionService(db)
	productService, err := productctrl.NewProductService(db)
	if err != nil {
		log.Error(err, "Failed to initialize product service")
		return
	}

	// Initialize the start gate
	var domains []string
	if raw := viper.GetString("gate.allowed_domains"); raw != "" {
		domains = strings.Split(raw, ",")
	}
	validator := gate.NewEmailGate(domains)

	// Initialize lifecycle service and session coordinator
	svc := pipeline.NewService(
		jobService,
		stepService,
		runService,
		pipeline.DefaultRegistry(),
		queue.NewPublisher(amqpPublisher),
		validator,
	)
	coordinator := rebrand.NewCoordinator(sessionService, productService, svc, jobService)

	// Initialize HTTP handler
	handler := httpHdlr.NewHandler(svc, coordinator)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	// Close database connection
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}

	log.Info("Server exited")
}
