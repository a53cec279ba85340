package main

import (
	"fmt"
	"time"

	"github.com/pagetrail/internal/config"
	"github.com/pagetrail/internal/ident"
	"github.com/spf13/cobra"
)

// newHashIDCommand 打印给定网站、主机名、IP 与 UA 对应的会话 ID，便于排查重复会话。
func newHashIDCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "hash-id <website-id> <hostname> <ip> <user-agent>",
		Short: "Print the session id derived from the given visitor attributes",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			salter := ident.NewSalter(ident.Secret(cfg.AppSecret, cfg.DatabaseURL), cfg.SaltRotation == config.SaltRotationMonthly)

			if at != "" {
				t, err := parseMonth(at)
				if err != nil {
					return err
				}
				salter.WithClock(func() time.Time { return t })
			}

			fmt.Fprintln(cmd.OutOrStdout(), ident.UUID(salter.Salt(), args...))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "month", "", "Month (YYYY-MM) used when salt rotation is monthly")
	return cmd
}

func parseMonth(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", raw)
	}
	return t, nil
}
