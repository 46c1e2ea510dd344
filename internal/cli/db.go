package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ResetPhrase must be typed to confirm dropping the database.
const ResetPhrase = "I am Chuck Norris and I eat Agents for breakfast."

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the agent database",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBHistoryCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Drop and recreate the agent database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, `
You are about to destroy the Agent's database, and re-create it from scratch.
Are you *absolutely* sure you want to do this?
Type the phrase "%s" to confirm.

> `, ResetPhrase)
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimRight(line, "\r\n") != ResetPhrase {
					fmt.Fprintln(out, "\nYou chickened out. Wise move.")
					return nil
				}
			}

			ctx := context.Background()
			cfg, l, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer l.Close()
			defer db.Close()

			if err := db.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "Database %s initialised.\n", cfg.Database.Redacted())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation phrase")
	return cmd
}

func newDBHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <harvester|datasource|repository> <uid>",
		Short: "Show archived configuration versions of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "harvester", "datasource", "repository":
			default:
				return fmt.Errorf("unknown entity %q", args[0])
			}

			ctx := context.Background()
			_, l, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer l.Close()
			defer db.Close()

			entries, err := db.History(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No archived versions of %s %s.\n", args[0], args[1])
				return nil
			}
			for _, e := range entries {
				data, err := json.Marshal(e.Data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "v%-3d %s  %s\n", e.Version, e.Changed.Format("2006-01-02 15:04:05"), data)
			}
			return nil
		},
	}
}
