package models

// Prediction is one ranked disease label.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DiseaseResult holds the top-K predictions for one leaf image, sorted by
// confidence descending, or an error marker when classification failed.
type DiseaseResult struct {
	Predictions []Prediction `json:"predictions,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Failed reports whether r is an error marker.
func (r *DiseaseResult) Failed() bool { return r != nil && r.Error != "" }

// Top returns the highest-confidence prediction, or nil.
func (r *DiseaseResult) Top() *Prediction {
	if r == nil || len(r.Predictions) == 0 {
		return nil
	}
	return &r.Predictions[0]
}

// Recommendation is one Integrated Farming System model suggested for a district.
type Recommendation struct {
	Model            string `json:"model"`
	Description      string `json:"description"`
	AgroClimaticZone string `json:"agro_climatic_zone,omitempty"`
}

// IFSQuery is the input to the IFS recommender. District takes precedence
// over Location and skips geocoding.
type IFSQuery struct {
	Location string
	District string
	Crop     string
	SoilType string
}

// IFSResult holds the IFS models for the resolved district in CSV order, or
// an error marker when the lookup failed.
type IFSResult struct {
	InputLocation    string           `json:"input_location,omitempty"`
	InputDistrict    string           `json:"input_district,omitempty"`
	GeocodedDistrict string           `json:"geocoded_district,omitempty"`
	MatchedDistrict  string           `json:"matched_district,omitempty"`
	Recommendations  []Recommendation `json:"recommendations,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Failed reports whether r is an error marker.
func (r *IFSResult) Failed() bool { return r != nil && r.Error != "" }
