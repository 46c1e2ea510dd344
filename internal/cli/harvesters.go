package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/store"
)

func newHarvestersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvesters",
		Short: "Inspect harvesters mirrored from the CMS",
	}

	cmd.AddCommand(newHarvestersListCmd())
	return cmd
}

func newHarvestersListCmd() *cobra.Command {
	var (
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List harvesters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, l, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer l.Close()
			defer db.Close()

			hs, err := db.ListHarvesters(ctx, domain.HarvesterStatus(status))
			if err != nil {
				return err
			}
			if hs == nil {
				hs = []domain.Harvester{}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(out, hs)
			}
			if len(hs) == 0 {
				fmt.Fprintln(out, "No harvesters.")
				return nil
			}
			for _, h := range hs {
				last := "never"
				if h.LastRun != nil {
					last = h.LastRun.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "  %-24s %-8s %-16s %-10s lastrun=%s\n",
					h.UID, h.Status, h.Protocol, h.Frequency, last)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list harvesters with this status (Active, Inactive, Deleted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect harvested records",
	}

	cmd.AddCommand(newRecordsListCmd())
	return cmd
}

func newRecordsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list <harvester-uid>",
		Short: "List the records harvested by a harvester",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, l, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer l.Close()
			defer db.Close()

			_, ds, repo, err := db.HarvesterTargets(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := db.ListRecords(ctx, store.RecordFilter{
				DatasourceID: ds.ID,
				RepositoryID: repo.ID,
				Status:       domain.RecordStatus(status),
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			if records == nil {
				records = []domain.HarvestedRecord{}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(out, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No records.")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("  %-40s %-9s errors=%d", r.UID, r.Status, r.ErrorCount)
				if r.MetadataUID != nil {
					line += " metadata_uid=" + *r.MetadataUID
				}
				if r.LastError != nil {
					line += " lasterror=" + *r.LastError
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list records with this status (Pending, Fetched, Committed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
