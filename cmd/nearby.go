package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/countrysync/internal/country"
	"github.com/sells-group/countrysync/internal/geospatial"
)

var (
	nearbyLat     float64
	nearbyLon     float64
	nearbyRadius  float64
	nearbyLimit   int
	nearbyGeoJSON bool
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List countries near a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := newService(st, nil, nil).Nearby(ctx, nearbyLat, nearbyLon, nearbyRadius, nearbyLimit)
		if err != nil {
			return err
		}
		if nearbyGeoJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(geospatial.FeatureCollection(results))
		}
		formatNearby(cmd.OutOrStdout(), results)
		return nil
	},
}

func init() {
	nearbyCmd.Flags().Float64Var(&nearbyLat, "lat", 0, "latitude in degrees")
	nearbyCmd.Flags().Float64Var(&nearbyLon, "lon", 0, "longitude in degrees")
	nearbyCmd.Flags().Float64Var(&nearbyRadius, "radius", country.DefaultNearbyRadius, "search radius in km")
	nearbyCmd.Flags().IntVar(&nearbyLimit, "limit", country.DefaultNearbyLimit, "maximum results")
	nearbyCmd.Flags().BoolVar(&nearbyGeoJSON, "geojson", false, "print a GeoJSON FeatureCollection")
	_ = nearbyCmd.MarkFlagRequired("lat")
	_ = nearbyCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(nearbyCmd)
}

func formatNearby(out io.Writer, results []geospatial.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME\tDISTANCE_KM\tSOURCE")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n",
			r.Country.Alpha2Code,
			r.Country.DisplayName(),
			r.DistanceKm,
			r.Country.Source,
		)
	}
	_ = w.Flush()
}
