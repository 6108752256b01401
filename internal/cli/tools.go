package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"dubbing-service/ddd/domain/service"
	"dubbing-service/ddd/infrastructure/executor"
	"dubbing-service/pkg/middleware"
	"dubbing-service/pkg/registry"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print duration and stream info of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			info, err := executor.NewFFmpegExecutor(cfg.Media).Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newDetectLanguageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-language <text>...",
		Short: "Guess the language of a transcript snippet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, confident := service.NewLanguageClassifier().Detect(strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tconfident=%t\n", code, confident)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an API token signed with jwt.secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			now := time.Now()
			token, err := middleware.IssueToken(cfg.JWT, args[0], jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newInstancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List dubbing service instances registered in etcd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.ServiceRegistry.Endpoints) == 0 {
				return fmt.Errorf("service_registry.endpoints is empty")
			}
			sd, err := registry.NewServiceDiscovery(cfg.ServiceRegistry.Endpoints)
			if err != nil {
				return err
			}
			defer sd.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			list, err := sd.Instances(ctx, cfg.ServiceRegistry.ServiceName)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHTTP\tGRPC\tSTARTED")
			for _, inst := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inst.ID, inst.HTTPAddr, inst.GRPCAddr, inst.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
