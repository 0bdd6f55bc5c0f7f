package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geo-cascade-service/internal/adapter/memory"
	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

func newResolveCmd() *cobra.Command {
	var lon, lat float64
	var color string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Place a marker at --lon/--lat and print the resolved hierarchy",
		Example: `  locator resolve --lon -3.7038 --lat 40.4168
  locator resolve --lon -5.9845 --lat 37.3891 --color '#ff8800'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg)
			metrics := observability.NewMetricsForTesting()

			data, cleanup, err := buildDataService(cmd.Context(), cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer cleanup()

			m := memory.NewMap(logger)
			s := cascade.NewSession("cli", data, m, cascadeOptions(cfg), logger, metrics)
			defer s.Close()

			res, err := s.PlaceMarker(cmd.Context(), domain.Coordinates{Lon: lon, Lat: lat}, color)
			s.Wait()
			if err != nil {
				if errors.Is(err, domain.ErrResolutionNotFound) || errors.Is(err, domain.ErrHierarchyNotFound) {
					return fmt.Errorf("%s (%.5f, %.5f)", domain.ErrResolutionNotFound, lon, lat)
				}
				return err
			}

			_, popup := m.Marker()
			out := struct {
				cascade.MarkerResult
				Popup *domain.Popup `json:"popup,omitempty"`
			}{res, popup}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude (WGS-84)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude (WGS-84)")
	cmd.Flags().StringVar(&color, "color", "", "marker color, random when empty")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("lat")
	return cmd
}
