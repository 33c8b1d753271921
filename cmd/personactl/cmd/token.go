package cmd

import (
	"fmt"
	"strings"

	persona "github.com/pilab-dev/persona-client"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:     "token",
		Short:   "Obtain, validate and invalidate persona tokens",
		Aliases: []string{"tokens"},
	}

	tokenCmd.AddCommand(newTokenObtainCmd(a), newTokenValidateCmd(a), newTokenInvalidateCmd(a))

	return tokenCmd
}

func newTokenObtainCmd(a *app) *cobra.Command {
	var (
		clientID     string
		clientSecret string
		scopes       []string
		noCache      bool
		raw          bool
	)

	cmd := &cobra.Command{
		Use:   "obtain",
		Short: "Obtain a client-credentials token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.persona()
			if err != nil {
				return err
			}
			id, secret, err := a.credentials(clientID, clientSecret)
			if err != nil {
				return err
			}

			opts := []persona.ObtainOption{persona.WithScope(scopes...)}
			if noCache {
				opts = append(opts, persona.WithoutCache())
			}

			token, err := client.Tokens.ObtainNewToken(cmd.Context(), id, secret, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, token.AccessToken)
				return nil
			}

			fmt.Fprintln(out, a.ui.ok("token obtained"), a.ui.dim("expires "+token.ExpiresAt.Format("2006-01-02 15:04:05 MST")))
			display := *token
			display.Raw = nil
			return printYAML(out, display)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (prompted for when omitted)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope to request, repeatable")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "always request a new token from persona")
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the access token")

	return cmd
}

func newTokenValidateCmd(a *app) *cobra.Command {
	var (
		scope string
		mode  string
	)

	cmd := &cobra.Command{
		Use:   "validate TOKEN",
		Short: "Validate a token locally or against persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validationMode, err := parseMode(mode)
			if err != nil {
				return err
			}
			client, err := a.persona()
			if err != nil {
				return err
			}

			v := client.Tokens.ValidateToken(cmd.Context(), persona.ValidateOptions{
				Token: args[0],
				Scope: scope,
				Mode:  validationMode,
			})

			out := cmd.OutOrStdout()
			if !v.Valid() {
				fmt.Fprintln(out, a.ui.err(v.Result.String()), v.Reason)
				return v.Err()
			}

			fmt.Fprintln(out, a.ui.ok("valid"), a.ui.dim("("+validationMode.String()+")"))
			if v.Claims != nil {
				return printYAML(out, map[string]interface{}{
					"subject":   v.Claims.Subject,
					"client_id": v.Claims.ClientID,
					"scopes":    v.Claims.Scopes,
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope the token must grant")
	cmd.Flags().StringVar(&mode, "mode", "auto", "validation mode: auto, local or remote")

	return cmd
}

func parseMode(mode string) (persona.ValidationMode, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		return persona.ModeAuto, nil
	case "local":
		return persona.ModeLocal, nil
	case "remote":
		return persona.ModeRemote, nil
	default:
		return persona.ModeAuto, fmt.Errorf("unknown validation mode %q", mode)
	}
}

func newTokenInvalidateCmd(a *app) *cobra.Command {
	var (
		clientID string
		scopes   []string
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove a cached token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clientID == "" {
				clientID = a.cfg.ClientID
			}
			if clientID == "" {
				return fmt.Errorf("client id is required via --client-id or client_id in config")
			}

			client, err := a.persona()
			if err != nil {
				return err
			}
			if err := client.Tokens.Invalidate(cmd.Context(), clientID, scopes...); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.ui.ok("cached token removed"), a.ui.dim(clientID))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope the token was obtained with, repeatable")

	return cmd
}
