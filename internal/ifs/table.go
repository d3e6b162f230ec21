package ifs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/agrismart/pkg/models"
)

// Required CSV columns.
const (
	colDistrict = "District"
	colZone     = "Agro_Climatic_Zone"
	colModel    = "IFS_Model"
	colDesc     = "Description"
)

var (
	districtWord = regexp.MustCompile(`\bdistrict\b`)
	nonLetters   = regexp.MustCompile(`[^a-z\s]`)
	spaces       = regexp.MustCompile(`\s+`)
)

// NormalizeDistrict folds a district name to its lookup key: lower case,
// the word "district" dropped, anything but letters turned into spaces and
// runs of whitespace collapsed. "Chengalpattu District" and " chengalpattu"
// share a key.
func NormalizeDistrict(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = districtWord.ReplaceAllString(s, "")
	s = nonLetters.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Record is one row of the IFS reference table.
type Record struct {
	District string
	Zone     string
	Model    string
	Desc     string
}

// Table indexes the IFS reference rows by normalized district.
type Table struct {
	display map[string]string
	records map[string][]Record
}

// LoadTable reads the IFS CSV at path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReferenceData, err)
	}
	defer f.Close()
	return ParseTable(f)
}

// ParseTable reads IFS rows from CSV. A UTF-8 byte order mark is tolerated
// and extra columns are ignored.
func ParseTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty csv", ErrReferenceData)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrReferenceData, err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		idx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range []string{colDistrict, colZone, colModel, colDesc} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: csv is missing required columns: %s (found: %s)",
			ErrReferenceData, strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	t := &Table{display: map[string]string{}, records: map[string][]Record{}}
	field := func(row []string, col string) string {
		if i := idx[col]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReferenceData, err)
		}
		rec := Record{
			District: field(row, colDistrict),
			Zone:     field(row, colZone),
			Model:    field(row, colModel),
			Desc:     field(row, colDesc),
		}
		t.add(rec)
	}
	return t, nil
}

func (t *Table) add(rec Record) {
	key := NormalizeDistrict(rec.District)
	if key == "" {
		return
	}
	if _, ok := t.display[key]; !ok {
		t.display[key] = rec.District
	}
	t.records[key] = append(t.records[key], rec)
}

// Lookup returns the display name and recommendations for district, in CSV
// order with identical (model, description, zone) rows collapsed. Only an
// exact normalized match counts.
func (t *Table) Lookup(district string) (string, []models.Recommendation, bool) {
	key := NormalizeDistrict(district)
	recs, ok := t.records[key]
	if !ok {
		return "", nil, false
	}

	type sig struct{ model, desc, zone string }
	seen := make(map[sig]bool, len(recs))
	out := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		s := sig{r.Model, r.Desc, r.Zone}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, models.Recommendation{Model: r.Model, Description: r.Desc, AgroClimaticZone: r.Zone})
	}
	return t.display[key], out, true
}

// Districts returns the display names of all districts, sorted.
func (t *Table) Districts() []string {
	names := make([]string, 0, len(t.display))
	for _, name := range t.display {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
