package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/harvestagent/internal/config"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/store"
	"github.com/soyeahso/harvestagent/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:    %s\n", paths.Config)
			fmt.Fprintf(out, "Data:      %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:      %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:    error loading: %v\n", err)
				return nil
			}
			config.ApplyPaths(&cfg, paths)

			fmt.Fprintf(out, "Database:  %s\n", cfg.Database.Redacted())
			fmt.Fprintf(out, "CMS:       %s\n", cfg.CMS.URL)
			auth := "none"
			if cfg.API.Token != "" {
				auth = "token"
			}
			fmt.Fprintf(out, "API:       %s auth=%s\n", cfg.API.Addr(), auth)
			if cfg.Scheduler.Enabled {
				fmt.Fprintf(out, "Scheduler: every %s\n", cfg.Scheduler.Interval)
			} else {
				fmt.Fprintln(out, "Scheduler: disabled")
			}
			fmt.Fprintf(out, "Harvest:   maxAttempts=%d newRecordLimit=%d concurrency=%d rate=%g/s\n",
				cfg.Harvest.MaxAttempts, cfg.Harvest.NewRecordLimit, cfg.Harvest.FetchConcurrency, cfg.Harvest.RequestRate)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			db, err := store.Open(ctx, cfg.Database, log)
			if err != nil {
				fmt.Fprintf(out, "\nDatabase:  unreachable: %v\n", err)
				return nil
			}
			defer db.Close()

			hs, err := db.ListHarvesters(ctx, "")
			if err != nil {
				return err
			}
			counts := map[domain.HarvesterStatus]int{}
			due := 0
			for i := range hs {
				counts[hs[i].Status]++
				if hs[i].IsHarvestDue(time.Now()) {
					due++
				}
			}
			fmt.Fprintf(out, "\nHarvesters: %d active, %d inactive, %d deleted; %d due\n",
				counts[domain.HarvesterActive], counts[domain.HarvesterInactive], counts[domain.HarvesterDeleted], due)
			return nil
		},
	}

	return cmd
}
