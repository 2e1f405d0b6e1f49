package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/pkg/core"
)

func keyArgs(args []string) core.RecordingKey {
	return core.RecordingKey{Name: args[0], Model: args[1]}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printListings(w io.Writer, listings []core.Listing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODEL\tREV\tFRAMES\tSTART")
	for _, l := range listings {
		p := l.StartPosition.Position
		fmt.Fprintf(tw, "%s\t%s\t%03d\t%d\t%.1f, %.1f, %.1f\n", l.Name, l.Model, l.Revision, l.Frames, p.X, p.Y, p.Z)
	}
	return tw.Flush()
}

func printVanilla(w io.Writer, groups []core.VanillaGroup) {
	for _, g := range groups {
		ids := make([]string, len(g.IDs))
		for i, id := range g.IDs {
			ids[i] = fmt.Sprintf("%03d", id)
		}
		fmt.Fprintf(w, "%s: %s\n", g.Name, strings.Join(ids, " "))
	}
}

func (c *cli) listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the current revision of every recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			listings, err := cat.List()
			if err != nil {
				// keep going with whatever could be read
				c.log.Warn().Err(err).Msg("Some recordings could not be read")
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), listings)
			}
			return printListings(cmd.OutOrStdout(), listings)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) inspectCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "inspect NAME MODEL",
		Short: "Print a recording as an XML frame document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			listing, frames, err := cat.Get(keyArgs(args))
			if err != nil {
				return err
			}
			if summary {
				return printJSON(cmd.OutOrStdout(), listing)
			}
			out, err := codec.NewDocument(frames).XML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print the listing instead of the frames")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME MODEL",
		Short: "Delete every revision of a recording",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			key := keyArgs(args)
			n, err := cat.Delete(key)
			if err != nil {
				return err
			}
			c.log.Info().Str("recording", key.String()).Int("revisions", n).Msg("Deleted")
			return nil
		},
	}
}

func (c *cli) compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Remove superseded revisions and renumber the rest to 001",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			res, err := cat.Compact()
			if err != nil {
				return err
			}
			c.log.Info().Int("removed", res.Removed).Int("renamed", res.Renamed).Msg("Compacted")
			return nil
		},
	}
}

func (c *cli) vanillaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vanilla",
		Short: "List built-in recordings by group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			groups, err := cat.Vanilla()
			if err != nil {
				return err
			}
			printVanilla(cmd.OutOrStdout(), groups)
			return nil
		},
	}
}

// readDocument loads an XML frame document.
func readDocument(fs afero.Fs, path string) ([]core.Frame, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	doc, err := codec.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc.Frames()
}

func (c *cli) importCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import FILE NAME MODEL",
		Short: "Store an XML frame document as a recording",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}
			frames, err := readDocument(c.fs, args[0])
			if err != nil {
				return err
			}
			rec, err := cat.Save(keyArgs(args[1:]), frames, nil, overwrite)
			if err != nil {
				if errors.Is(err, catalog.ErrAlreadyExists) {
					c.log.Warn().Msg("Use --overwrite to store a new revision")
				}
				return err
			}
			c.log.Info().Str("recording", rec.Base(rec.Revision)).Int("frames", len(frames)).Msg("Imported")
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "store a new revision when the recording exists")
	return cmd
}
