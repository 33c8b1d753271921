package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCmd(a *app) *cobra.Command {
	userCmd := &cobra.Command{
		Use:     "user",
		Short:   "Look up persona users",
		Aliases: []string{"users"},
	}

	var (
		gupid string
		guids []string
		token string
	)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get users by gupid or guids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (gupid == "") == (len(guids) == 0) {
				return errors.New("exactly one of --gupid or --guids is required")
			}

			client, err := a.persona()
			if err != nil {
				return err
			}
			bearer, err := a.bearer(cmd.Context(), token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if gupid != "" {
				user, err := client.Users.GetUserByGupid(cmd.Context(), gupid, bearer)
				if err != nil {
					return err
				}
				return printYAML(out, user)
			}

			users, err := client.Users.GetUserByGuids(cmd.Context(), guids, bearer)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, a.ui.title(fmt.Sprintf("%d user(s)", len(users))))
			return printYAML(out, users)
		},
	}

	getCmd.Flags().StringVar(&gupid, "gupid", "", "global user profile id")
	getCmd.Flags().StringSliceVar(&guids, "guids", nil, "user guids, comma separated")
	getCmd.Flags().StringVar(&token, "token", "", "bearer token (obtained with the configured client when omitted)")

	userCmd.AddCommand(getCmd)

	return userCmd
}
