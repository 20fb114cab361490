package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/pkg/config"
	"github.com/noah-isme/civic-workflow-api/pkg/logger"
)

// @title Civic Workflow API
// @version 1.0.0
// @description Request and task workflow for municipal departments.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var rootCmd = &cobra.Command{
	Use:   "civic-workflow-api",
	Short: "Civic Workflow API",
	Long: `Civic Workflow API tracks citizen requests and internal tasks across
municipal departments, with status history, audit logging and notifications.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
		NewUserCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the process logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
