package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geo-cascade-service/internal/adapter/opendatasoft"
	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

func newListCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "list <region|province|municipality>",
		Short: "List the candidates of a level",
		Example: `  locator list region
  locator list province --parent "Comunidad de Madrid"
  locator list municipality --parent Madrid`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"region", "province", "municipality"},
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := domain.ParseLevel(args[0])
			if err != nil {
				return err
			}
			if level != domain.Region && parent == "" {
				return fmt.Errorf("--parent is required for %s", level)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client := opendatasoft.NewClient(cfg.DataURL, cfg.DataTimeout, observability.NewLogger(cfg))

			records, err := client.ListChildren(cmd.Context(), level, parent)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, r := range records {
				if r.Coordinates != nil {
					fmt.Fprintf(tw, "%s\t%.5f\t%.5f\n", r.Name, r.Coordinates.Lon, r.Coordinates.Lat)
				} else {
					fmt.Fprintf(tw, "%s\n", r.Name)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "name of the parent level value")
	return cmd
}
