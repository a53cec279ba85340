package main

import (
	"fmt"
	"os"

	"github.com/pagetrail/internal/cache"
	"github.com/pagetrail/internal/config"
	"github.com/pagetrail/internal/db"
	applog "github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/service"
	"github.com/pagetrail/internal/store"
	"github.com/spf13/cobra"
)

// openDatabase 加载配置并打开、迁移数据库，供管理命令复用。
func openDatabase() (config.AppConfig, error) {
	cfg := config.Load()
	applog.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := db.Init(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return cfg, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, nil
}

func newWebsiteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "website",
		Short: "Register or remove tracked websites",
	}

	var teamID string
	add := &cobra.Command{
		Use:   "add <name> <domain>",
		Short: "Register a website and print its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(); err != nil {
				return err
			}
			defer db.Close(db.DB)

			var team *string
			if teamID != "" {
				team = &teamID
			}
			site, err := service.NewWebsiteService(db.DB, nil).CreateWebsite(cmd.Context(), args[0], args[1], team)
			if err != nil {
				return fmt.Errorf("failed to create website: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), site.ID)
			return nil
		},
	}
	add.Flags().StringVar(&teamID, "team", "", "Team id owning the website")

	remove := &cobra.Command{
		Use:   "delete <website-id>",
		Short: "Soft delete a website and evict it from the lookup cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close(db.DB)

			svc := service.NewWebsiteService(db.DB, nil)
			if cfg.CacheEnabled() {
				client, err := cache.NewClient(cmd.Context(), cfg.RedisURL)
				if err != nil {
					return fmt.Errorf("failed to connect redis: %w", err)
				}
				defer client.Close()
				svc = service.NewWebsiteService(db.DB, cache.NewRedisCache(client, store.New(db.DB), applog.WithComponent("cache")))
			}

			if err := svc.DeleteWebsite(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete website: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func newTeamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
	}

	var owner string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a team and print its access code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(); err != nil {
				return err
			}
			defer db.Close(db.DB)

			var user db.User
			if err := db.DB.WithContext(cmd.Context()).Where("username = ?", owner).Take(&user).Error; err != nil {
				return fmt.Errorf("owner %q not found: %w", owner, err)
			}

			team, err := service.NewTeamService(db.DB).CreateTeam(cmd.Context(), args[0], user.ID)
			if err != nil {
				return fmt.Errorf("failed to create team: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", team.ID, team.AccessCode)
			return nil
		},
	}
	add.Flags().StringVar(&owner, "owner", "", "Username of the team owner")
	_ = add.MarkFlagRequired("owner")

	members := &cobra.Command{
		Use:   "members <team-id>",
		Short: "List team members and their roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(); err != nil {
				return err
			}
			defer db.Close(db.DB)

			list, err := service.NewTeamService(db.DB).Members(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list members: %w", err)
			}
			for _, m := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", m.UserID, m.Role)
			}
			return nil
		},
	}

	cmd.AddCommand(add, members)
	return cmd
}
