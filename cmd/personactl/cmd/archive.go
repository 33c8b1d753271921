package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pilab-dev/persona-client/manifesto"
	"github.com/spf13/cobra"
)

func newArchiveCmd(a *app) *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Request manifesto archives",
	}

	var (
		file         string
		clientID     string
		clientSecret string
	)

	archiveCmd.PersistentFlags().StringVar(&clientID, "client-id", "", "OAuth client id")
	archiveCmd.PersistentFlags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")

	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "Submit a manifest for archiving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}
			var manifest manifesto.Manifest
			if err := json.Unmarshal(raw, &manifest); err != nil {
				return fmt.Errorf("failed to decode manifest: %w", err)
			}

			client, id, secret, err := a.manifesto(clientID, clientSecret)
			if err != nil {
				return err
			}

			archive, err := client.RequestArchive(cmd.Context(), manifest, id, secret)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.ui.ok("archive queued"))
			return printYAML(out, archive)
		},
	}
	requestCmd.Flags().StringVarP(&file, "file", "f", "", "manifest JSON file")
	_ = requestCmd.MarkFlagRequired("file")

	urlCmd := &cobra.Command{
		Use:   "url JOB_ID",
		Short: "Generate a download url for a finished archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, secret, err := a.manifesto(clientID, clientSecret)
			if err != nil {
				return err
			}

			u, err := client.GenerateURL(cmd.Context(), args[0], id, secret)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	archiveCmd.AddCommand(requestCmd, urlCmd)

	return archiveCmd
}

func (a *app) manifesto(clientID, clientSecret string) (*manifesto.Client, string, string, error) {
	p, err := a.persona()
	if err != nil {
		return nil, "", "", err
	}
	id, secret, err := a.credentials(clientID, clientSecret)
	if err != nil {
		return nil, "", "", err
	}
	client, err := a.cfg.NewManifesto(p.Tokens, a.logger)
	if err != nil {
		return nil, "", "", err
	}
	return client, id, secret, nil
}
