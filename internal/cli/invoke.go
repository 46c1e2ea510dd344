package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/harvestagent/internal/agent"
)

func newInvokeCmd() *cobra.Command {
	var p agent.Params

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Refresh a harvester from the CMS and run it if due",
		Long: "Invoke a harvester. The harvester UID is also used as both the datasource\n" +
			"UID and the repository UID.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			p.DatasourceUID = p.HarvesterUID
			p.RepositoryUID = p.HarvesterUID
			res := a.agent.InvokeHarvester(ctx, p)
			printResult(cmd.OutOrStdout(), "Agent.invoke", res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&p.HarvesterUID, "harvester", "H", "", "harvester UID; also used as the datasource and repository UID")
	cmd.Flags().StringVarP(&p.RepositoryURL, "repository-url", "r", "", "URL of the metadata repository")
	cmd.Flags().StringVarP(&p.Username, "username", "u", "", "repository username")
	cmd.Flags().StringVarP(&p.Password, "password", "p", "", "repository password")
	cmd.Flags().StringVarP(&p.Institution, "institution", "i", "", "institution that owns the repository")
	for _, name := range []string{"harvester", "repository-url", "username", "password", "institution"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func printResult(w io.Writer, title string, res agent.Result) {
	fmt.Fprintf(w, "--- %s result ---\n", title)
	fmt.Fprintln(w, "success:", res.Success)
	fmt.Fprintln(w, "message:", res.Message)
	if s := res.Summary; s != nil {
		fmt.Fprintf(w, "records: collected=%d new=%d fetched=%d committed=%d errors=%d (%s)\n",
			s.Collected, s.New, s.Fetched, s.Committed, s.FetchErrors+s.CommitErrors, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "---------------------------")
}

func newRunDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Run every active harvester whose harvest is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.agent.RunDue(ctx)
			for _, res := range results {
				printResult(cmd.OutOrStdout(), res.Harvester, res)
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No harvesters are due.")
			}
			return nil
		},
	}
}
