package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCredentialCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "Issue, list and revoke account credentials",
	}
	cmd.AddCommand(newCredentialIssueCommand(a))
	cmd.AddCommand(newCredentialListCommand(a))
	cmd.AddCommand(newCredentialRevokeCommand(a))
	return cmd
}

func newCredentialIssueCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <username>",
		Short: "Issue a new credential; the secret is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a.accounts().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			issued, err := a.credentials().Issue(cmd.Context(), account.ID)
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.printJSON(map[string]any{
					"id":     issued.Credential.ID,
					"prefix": issued.Credential.Prefix,
					"token":  issued.Secret,
				})
			}
			fmt.Fprintf(a.stdout, "id:    %s\ntoken: %s\n", issued.Credential.ID, issued.Secret)
			return nil
		},
	}
}

func newCredentialListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <username>",
		Short: "List an account's credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a.accounts().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			creds, err := a.credentials().List(cmd.Context(), account.ID)
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.printJSON(creds)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tCREATED")
			for _, c := range creds {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Prefix, c.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newCredentialRevokeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <credential-id>",
		Short: "Revoke a credential immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.credentials().Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "revoked %s\n", args[0])
			return nil
		},
	}
}
