package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"packsight/src/storage/postgres/jobctrl"
	"packsight/src/storage/postgres/productctrl"
	"packsight/src/storage/postgres/runctrl"
	"packsight/src/storage/postgres/sessionctrl"
	"packsight/src/storage/postgres/stepctrl"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	settingDefaultConfig()
}

func runMigrate(cmd *cobra.Command, args []string) error {
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

	if err := db.AutoMigrate(
		&jobctrl.Job{},
		&stepctrl.StepRecord{},
		&runctrl.RunRecord{},
		&sessionctrl.RebrandSession{},
		&productctrl.Product{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %v", err)
	}

	fmt.Println("Schema is up to date")
	return nil
}
