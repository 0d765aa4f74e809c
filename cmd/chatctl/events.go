package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatmeter/chatmeter/internal/events"
)

func newEventsCommand(a *app) *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent metering events from the Redis stream",
		Long: `Show the newest metering events, newest first. Look for
rollback_failed entries when reconciling balances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.deps.redis == nil {
				return fmt.Errorf("redis URL required: set --redis-url or REDIS_URL")
			}
			recent, err := events.NewPublisher(a.deps.redis, a.deps.logger, nil).Recent(cmd.Context(), count)
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.printJSON(recent)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tTYPE\tACCOUNT\tAMOUNT\tBALANCE\tTX\tDETAIL")
			for _, e := range recent {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					time.UnixMilli(e.At).UTC().Format(time.RFC3339), e.Type, e.AccountID, e.Amount, e.Balance, e.TxID, e.Detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64VarP(&count, "count", "n", 20, "number of events")
	return cmd
}
