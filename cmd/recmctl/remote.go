package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecM/recm/internal/api"
	"github.com/RecM/recm/internal/config"
)

// remoteFlags locate the admin API of a running server.
type remoteFlags struct {
	server string
	secret string
	limit  int
}

// baseURL derives the admin address from the websocket url when --server
// is not given.
func (r *remoteFlags) baseURL() string {
	if r.server != "" {
		return r.server
	}
	u := config.GetTransportConfig().URL
	u = strings.TrimSuffix(u, "/ws")
	u = strings.Replace(u, "wss://", "https://", 1)
	return strings.Replace(u, "ws://", "http://", 1)
}

func (r *remoteFlags) client() *api.Client {
	secret := r.secret
	if secret == "" {
		secret = config.GetTransportConfig().Secret
	}
	return api.New(r.baseURL(), secret)
}

func (c *cli) remoteCmd() *cobra.Command {
	rf := &remoteFlags{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running recm server",
	}
	cmd.PersistentFlags().StringVar(&rf.server, "server", "", "admin API address (defaults to transport.url)")
	cmd.PersistentFlags().StringVar(&rf.secret, "secret", "", "shared secret (defaults to transport.secret)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Check the server is up",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := rf.client().Healthcheck(cmd.Context())
				if err != nil {
					return err
				}
				c.log.Info().Str("server", rf.baseURL()).Int("clients", n).Msg("Server is up")
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List recordings on the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				listings, warning, err := rf.client().Recordings(cmd.Context())
				if err != nil {
					return err
				}
				if warning != "" {
					c.log.Warn().Str("detail", warning).Msg("Some recordings could not be read")
				}
				return printListings(cmd.OutOrStdout(), listings)
			},
		},
		&cobra.Command{
			Use:   "vanilla",
			Short: "List built-in recordings known to the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				groups, err := rf.client().Vanilla(cmd.Context())
				if err != nil {
					return err
				}
				printVanilla(cmd.OutOrStdout(), groups)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete NAME MODEL",
			Short: "Delete a recording on the server",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := keyArgs(args)
				n, err := rf.client().Delete(cmd.Context(), key)
				if err != nil {
					return err
				}
				c.log.Info().Str("recording", key.String()).Int("revisions", n).Msg("Deleted")
				return nil
			},
		},
		&cobra.Command{
			Use:   "export NAME MODEL",
			Short: "Print a server recording as an XML frame document",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				doc, err := rf.client().RecordingXML(cmd.Context(), keyArgs(args))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
				return err
			},
		},
		c.remoteImportCmd(rf),
		c.remoteHistoryCmd(rf),
	)
	return cmd
}

func (c *cli) remoteImportCmd(rf *remoteFlags) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import FILE NAME MODEL",
		Short: "Upload an XML frame document to the server",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := rf.client().Import(cmd.Context(), args[0], keyArgs(args[1:]), overwrite)
			if err != nil {
				return err
			}
			c.log.Info().Str("recording", rec.Base(rec.Revision)).Msg("Imported")
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "store a new revision when the recording exists")
	return cmd
}

func (c *cli) remoteHistoryCmd(rf *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "history saves|playbacks",
		Short:     "Show recent history from the server",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"saves", "playbacks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			switch args[0] {
			case "saves":
				saves, err := rf.client().Saves(ctx, rf.limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "TIME\tRECORDING\tREV\tFRAMES\tOVERWRITE")
				for _, s := range saves {
					fmt.Fprintf(tw, "%s\t%s_%s\t%03d\t%d\t%t\n", s.Time.Format(time.RFC3339), s.Name, s.Model, s.Revision, s.Frames, s.Overwrite)
				}
			case "playbacks":
				runs, err := rf.client().Playbacks(ctx, rf.limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "STARTED\tRECORDING\tREASON\tPLAYED\tTRAIL")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1fm\n", r.StartedAt.Format(time.RFC3339), r.RecordingName, r.Reason,
						r.StoppedAt.Sub(r.StartedAt).Truncate(time.Millisecond), r.TrailLength)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&rf.limit, "limit", "n", 20, "number of entries")
	return cmd
}
