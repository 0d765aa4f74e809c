package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newBalanceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Inspect and correct token balances",
	}
	cmd.AddCommand(newBalanceGetCommand(a))
	cmd.AddCommand(newBalanceAdjustCommand(a))
	return cmd
}

func newBalanceGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <username>",
		Short: "Show an account's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a.accounts().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.printJSON(map[string]any{
					"id":       account.ID,
					"username": account.Username,
					"tokens":   account.Balance,
				})
			}
			fmt.Fprintf(a.stdout, "%s\t%s\t%d\n", account.ID, account.Username, account.Balance)
			return nil
		},
	}
}

func newBalanceAdjustCommand(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "adjust <username> <delta>",
		Short: "Add or remove tokens, e.g. to reconcile a failed refund",
		Long: `Apply a signed delta to an account's balance under the balance lock.
A delta that would make the balance negative is refused. Pass negative
deltas after "--":

  chatctl balance adjust --reason "duplicate refund" -- alice -100`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			if delta == 0 {
				return fmt.Errorf("delta must not be zero")
			}
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			account, err := a.accounts().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			balance, err := a.metering().Adjust(cmd.Context(), account.ID, delta, reason)
			if err != nil {
				return err
			}

			if a.opts.outputJSON {
				return a.printJSON(map[string]any{
					"username": account.Username,
					"delta":    delta,
					"tokens":   balance,
				})
			}
			fmt.Fprintf(a.stdout, "%s: %d -> %d\n", account.Username, account.Balance, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the balance is being changed (logged and published)")
	return cmd
}
