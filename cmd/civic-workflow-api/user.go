package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/repository"
	"github.com/noah-isme/civic-workflow-api/internal/service"
	"github.com/noah-isme/civic-workflow-api/pkg/cache"
	"github.com/noah-isme/civic-workflow-api/pkg/database"
)

// NewUserCommand groups account provisioning.
func NewUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manages staff accounts.",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	input := service.CreateUserInput{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Creates an active staff account.",
		Long: `Creates an active staff account. The password is read from the
CIVIC_USER_PASSWORD environment variable when --password is omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			if input.Password == "" {
				input.Password = os.Getenv("CIVIC_USER_PASSWORD")
			}

			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("could not connect to db: %w", err)
			}
			defer db.Close()

			users := repository.NewUserRepository(db)

			svc := service.NewUserService(users, nil, nil, logr)
			if cfg.Notifications.DirectoryCacheEnabled {
				rdb, err := cache.NewRedis(ctx, cfg.Redis)
				if err != nil {
					logr.Warn("redis unavailable, cached department membership not cleared", zap.Error(err))
				} else {
					cacheRepo := repository.NewCacheRepository(rdb, logr)
					defer cacheRepo.Close() //nolint:errcheck
					cacheSvc := service.NewCacheService(cacheRepo, nil, cfg.Notifications.DirectoryCacheTTL, logr, true)
					directory := service.NewDepartmentDirectory(users, cacheSvc, cfg.Notifications.DirectoryCacheTTL)
					svc = service.NewUserService(users, directory, nil, logr)
				}
			}

			user, err := svc.Create(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s, %s)\n", user.ID, user.Email, user.Role, strings.TrimSpace(user.Department))
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&input.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&input.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&input.Role, "role", "member", "Role (member, admin, başkan)")
	cmd.Flags().StringVar(&input.Department, "department", "", "Department name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
