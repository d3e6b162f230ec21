// Command ifs prints Integrated Farming System recommendations for a Tamil
// Nadu district or free-text location without starting the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/kiranshivaraju/agrismart/internal/cache"
	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/internal/geocode"
	"github.com/kiranshivaraju/agrismart/internal/ifs"
	"github.com/kiranshivaraju/agrismart/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(viper.New(), os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Every flag can also be set through an
// AGRISMART_-prefixed environment variable, e.g. AGRISMART_CSV.
func newRootCommand(v *viper.Viper, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ifs",
		Short:         "Rule-based IFS recommender for Tamil Nadu (district-based)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecommend(cmd.Context(), v, out)
		},
	}
	cmd.SetOut(out)

	geo := config.DefaultGeocode()
	cmd.Flags().String("csv", config.DefaultIFSCSVPath, "Path to IFS CSV file")
	cmd.Flags().String("location", "", "Free-text location (village/town/city) in Tamil Nadu")
	cmd.Flags().String("district", "", "District name (skips geocoding)")
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().String("geocode-url", geo.BaseURL, "Nominatim base URL")
	cmd.Flags().String("user-agent", geo.UserAgent, "User-Agent sent to the geocoder")
	cmd.MarkFlagsMutuallyExclusive("location", "district")

	v.SetEnvPrefix("AGRISMART")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}

	return cmd
}

func runRecommend(ctx context.Context, v *viper.Viper, out io.Writer) error {
	location := strings.TrimSpace(v.GetString("location"))
	district := strings.TrimSpace(v.GetString("district"))
	switch {
	case location == "" && district == "":
		return errors.New("one of --location or --district is required")
	case location != "" && district != "":
		return errors.New("--location and --district are mutually exclusive")
	}

	format := v.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("--format must be text or json, got %q", format)
	}

	geoCfg := config.DefaultGeocode()
	geoCfg.BaseURL = v.GetString("geocode-url")
	geoCfg.UserAgent = v.GetString("user-agent")

	recommender := ifs.NewRecommender(v.GetString("csv"),
		geocode.NewNominatimClient(geoCfg, cache.NewMemoryCache(0), nil))

	res, err := recommender.Recommend(ctx, models.IFSQuery{Location: location, District: district})
	if err != nil && !errors.Is(err, ifs.ErrDistrictNotFound) {
		return err
	}
	if err != nil {
		res.Error = err.Error()
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printText(out, res)
	return nil
}

func printText(w io.Writer, res *models.IFSResult) {
	if res.InputLocation != "" {
		fmt.Fprintf(w, "Location: %s\n", res.InputLocation)
		fmt.Fprintf(w, "District (geocoded): %s\n", res.GeocodedDistrict)
	}
	if res.MatchedDistrict != "" {
		fmt.Fprintf(w, "District (matched to CSV): %s\n", res.MatchedDistrict)
	}
	fmt.Fprintln(w)

	if len(res.Recommendations) == 0 {
		fmt.Fprintln(w, "No recommendations found for this district in the CSV.")
		return
	}
	for i, r := range res.Recommendations {
		fmt.Fprintf(w, "%d. %s\n", i+1, r.Model)
		fmt.Fprintf(w, "   Zone: %s\n", r.AgroClimaticZone)
		fmt.Fprintf(w, "   Description: %s\n", r.Description)
		fmt.Fprintln(w)
	}
}
