package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/regflow/internal/app"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Review pending action requests",
	}

	var listType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending action requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				reqs, err := a.Approvals.ListPending(cmd.Context(), model.ActionType(listType))
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tEMAIL\tREGISTRATION\tCREATED")
				for _, r := range reqs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.Type, r.Email, r.RegistrationID, r.CreatedAt.Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&listType, "type", "", "only show requests of this type")
	cmd.AddCommand(list)

	var author string
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve one action request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				out, err := a.Approvals.Approve(cmd.Context(), args[0], author)
				if out != nil {
					fmt.Fprintln(cmd.OutOrStdout(), out.Summary())
				}
				return err
			})
		},
	}
	approve.Flags().StringVar(&author, "author", "", "name recorded on the admin comment")
	cmd.AddCommand(approve)

	var batchType, batchAuthor string
	approveAll := &cobra.Command{
		Use:   "approve-all",
		Short: "Approve every pending action request of a type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				outcomes, err := a.Approvals.ApproveAll(cmd.Context(), model.ActionType(batchType), batchAuthor)
				for i := range outcomes {
					fmt.Fprintln(cmd.OutOrStdout(), outcomes[i].Summary())
				}
				return err
			})
		},
	}
	approveAll.Flags().StringVar(&batchType, "type", "", "only approve requests of this type")
	approveAll.Flags().StringVar(&batchAuthor, "author", "", "name recorded on the admin comments")
	cmd.AddCommand(approveAll)

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <id>",
		Short: "Reject one action request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				out, err := a.Approvals.Reject(cmd.Context(), args[0])
				if out != nil {
					fmt.Fprintln(cmd.OutOrStdout(), out.Summary())
				}
				return err
			})
		},
	})

	return cmd
}
