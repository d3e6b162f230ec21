// Package ifs recommends Integrated Farming System models for a district
// from a CSV reference table, geocoding free-text locations when no
// district is given.
package ifs

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/agrismart/internal/geocode"
	"github.com/kiranshivaraju/agrismart/internal/lazy"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

var (
	ErrReferenceData    = errors.New("ifs reference data unavailable")
	ErrDistrictNotFound = errors.New("district not found")
	ErrNoInput          = errors.New("provide either a location or a district")
)

// Recommender looks up IFS models. The reference table is loaded on first
// use; a failed load is retried on the next call.
type Recommender struct {
	table    *lazy.Value[*Table]
	geocoder geocode.Geocoder
}

// NewRecommender creates a Recommender reading csvPath. geocoder may be nil,
// in which case only explicit districts can be resolved.
func NewRecommender(csvPath string, geocoder geocode.Geocoder) *Recommender {
	return &Recommender{
		table:    lazy.New(func() (*Table, error) { return LoadTable(csvPath) }),
		geocoder: geocoder,
	}
}

// NewRecommenderFromTable creates a Recommender over an already loaded table.
func NewRecommenderFromTable(t *Table, geocoder geocode.Geocoder) *Recommender {
	return &Recommender{
		table:    lazy.New(func() (*Table, error) { return t, nil }),
		geocoder: geocoder,
	}
}

// Recommend resolves q to a district and returns its IFS models. District
// wins over Location. Crop and SoilType are recorded by callers but do not
// narrow the recommendations.
//
// On failure the returned result is still non-nil and carries whatever was
// resolved before the error, e.g. the geocoded district.
func (r *Recommender) Recommend(ctx context.Context, q models.IFSQuery) (*models.IFSResult, error) {
	res := &models.IFSResult{InputLocation: q.Location, InputDistrict: q.District}

	table, err := r.table.Get()
	if err != nil {
		return res, err
	}

	district := q.District
	if district == "" {
		if q.Location == "" {
			return res, ErrNoInput
		}
		if r.geocoder == nil {
			return res, fmt.Errorf("%w: no geocoder configured", geocode.ErrUnreachable)
		}
		district, err = r.geocoder.District(ctx, q.Location)
		if err != nil {
			return res, err
		}
		res.GeocodedDistrict = district
	}

	matched, recs, ok := table.Lookup(district)
	if !ok {
		return res, fmt.Errorf("%w: %q", ErrDistrictNotFound, district)
	}
	res.MatchedDistrict = matched
	res.Recommendations = recs
	return res, nil
}

// Ready reports whether the reference table can be loaded.
func (r *Recommender) Ready() error {
	_, err := r.table.Get()
	return err
}
