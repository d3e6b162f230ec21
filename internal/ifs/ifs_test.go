package ifs_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiranshivaraju/agrismart/internal/geocode"
	"github.com/kiranshivaraju/agrismart/internal/ifs"
	"github.com/kiranshivaraju/agrismart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	district string
	err      error
	calls    int
}

func (g *fakeGeocoder) District(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.district, g.err
}

func TestNormalizeDistrict(t *testing.T) {
	tests := map[string]string{
		"Chengalpattu":            "chengalpattu",
		"chengalpattu ":           "chengalpattu",
		"  Chengalpattu District": "chengalpattu",
		"The Nilgiris":            "the nilgiris",
		"Kanniyakumari-District":  "kanniyakumari",
		"Tiruvannamalai  (TN)":    "tiruvannamalai tn",
		"Districtville":           "districtville",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ifs.NormalizeDistrict(in), "input %q", in)
	}
}

func TestParseTable_MissingColumns(t *testing.T) {
	_, err := ifs.ParseTable(strings.NewReader("District,IFS_Model\nSalem,Dairy\n"))
	require.ErrorIs(t, err, ifs.ErrReferenceData)
	assert.Contains(t, err.Error(), "Agro_Climatic_Zone, Description")
}

func TestParseTable_Empty(t *testing.T) {
	_, err := ifs.ParseTable(strings.NewReader(""))
	assert.ErrorIs(t, err, ifs.ErrReferenceData)
}

func TestTable_LookupDeduplicates(t *testing.T) {
	table, err := ifs.LoadTable(filepath.Join("testdata", "ifs.csv"))
	require.NoError(t, err)

	name, recs, ok := table.Lookup("COIMBATORE")
	require.True(t, ok)
	assert.Equal(t, "Coimbatore", name)
	require.Len(t, recs, 2)
	assert.Equal(t, "Crop + Dairy", recs[0].Model)
	assert.Equal(t, "Western Zone", recs[0].AgroClimaticZone)
	assert.Equal(t, "Crop + Goat", recs[1].Model)

	assert.Equal(t, []string{"Chengalpattu District", "Coimbatore", "Salem"}, table.Districts())
}

func TestTable_NoPartialMatch(t *testing.T) {
	table, err := ifs.LoadTable(filepath.Join("testdata", "ifs.csv"))
	require.NoError(t, err)

	_, _, ok := table.Lookup("Coimbator")
	assert.False(t, ok)
	_, _, ok = table.Lookup("Chengal")
	assert.False(t, ok)
}

func TestRecommend_District(t *testing.T) {
	geo := &fakeGeocoder{district: "Salem"}
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), geo)

	res, err := r.Recommend(context.Background(), models.IFSQuery{District: "Coimbatore", Location: "Salem"})
	require.NoError(t, err)
	assert.Equal(t, "Coimbatore", res.MatchedDistrict)
	assert.Equal(t, "Coimbatore", res.InputDistrict)
	assert.NotEmpty(t, res.Recommendations)
	assert.Zero(t, geo.calls, "district skips geocoding")
}

func TestRecommend_DistrictNormalizedVariantsMatchAlike(t *testing.T) {
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), nil)

	a, err := r.Recommend(context.Background(), models.IFSQuery{District: "chengalpattu "})
	require.NoError(t, err)
	b, err := r.Recommend(context.Background(), models.IFSQuery{District: "Chengalpattu"})
	require.NoError(t, err)

	assert.Equal(t, a.MatchedDistrict, b.MatchedDistrict)
	assert.Equal(t, a.Recommendations, b.Recommendations)
}

func TestRecommend_Location(t *testing.T) {
	geo := &fakeGeocoder{district: "Chengalpattu District"}
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), geo)

	res, err := r.Recommend(context.Background(), models.IFSQuery{Location: "Tambaram"})
	require.NoError(t, err)
	assert.Equal(t, "Tambaram", res.InputLocation)
	assert.Equal(t, "Chengalpattu District", res.GeocodedDistrict)
	assert.Equal(t, "Chengalpattu District", res.MatchedDistrict)
	assert.Len(t, res.Recommendations, 2)
}

func TestRecommend_GeocodeFailure(t *testing.T) {
	geo := &fakeGeocoder{err: geocode.ErrTimeout}
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), geo)

	res, err := r.Recommend(context.Background(), models.IFSQuery{Location: "Tambaram"})
	assert.ErrorIs(t, err, geocode.ErrTimeout)
	require.NotNil(t, res)
	assert.Equal(t, "Tambaram", res.InputLocation)
}

func TestRecommend_UnknownDistrict(t *testing.T) {
	geo := &fakeGeocoder{district: "Bengaluru Urban"}
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), geo)

	res, err := r.Recommend(context.Background(), models.IFSQuery{Location: "Whitefield"})
	assert.ErrorIs(t, err, ifs.ErrDistrictNotFound)
	assert.Equal(t, "Bengaluru Urban", res.GeocodedDistrict)
	assert.Empty(t, res.MatchedDistrict)
}

func TestRecommend_NoInput(t *testing.T) {
	r := ifs.NewRecommender(filepath.Join("testdata", "ifs.csv"), nil)
	_, err := r.Recommend(context.Background(), models.IFSQuery{Crop: "Rice"})
	assert.ErrorIs(t, err, ifs.ErrNoInput)
}

func TestRecommend_MissingCSVIsRetried(t *testing.T) {
	r := ifs.NewRecommender(filepath.Join(t.TempDir(), "absent.csv"), nil)
	_, err := r.Recommend(context.Background(), models.IFSQuery{District: "Salem"})
	assert.ErrorIs(t, err, ifs.ErrReferenceData)
	assert.Error(t, r.Ready())
}

func TestRecommend_LoadedTable(t *testing.T) {
	table, err := ifs.ParseTable(strings.NewReader("District,Agro_Climatic_Zone,IFS_Model,Description\nErode,Western Zone,Crop + Sericulture,Mulberry with silkworm rearing\n"))
	require.NoError(t, err)

	r := ifs.NewRecommenderFromTable(table, &fakeGeocoder{err: errors.New("unused")})
	res, err := r.Recommend(context.Background(), models.IFSQuery{District: "erode district"})
	require.NoError(t, err)
	assert.Equal(t, "Erode", res.MatchedDistrict)
	assert.NoError(t, r.Ready())
}
