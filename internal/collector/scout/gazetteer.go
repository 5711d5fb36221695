package scout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// Gazetteer is a static name -> coordinate table with fuzzy lookup, used
// to geocode a location mention extracted from scout text.
type Gazetteer struct {
	names   []string // lowercased, for matching
	display []string // original casing, for reporting
	coords  []graph.Point
}

// maxFuzzyDistance bounds how many character edits a candidate name may
// differ by and still be accepted as a match; it scales with the
// mention's length so short names require a near-exact hit.
func maxFuzzyDistance(mentionLen int) int {
	switch {
	case mentionLen <= 4:
		return 0
	case mentionLen <= 8:
		return 1
	default:
		return 2
	}
}

// LoadGazetteer reads a three-column CSV: name, lat, lon. The header row
// and rows with fewer than three columns or unparseable coordinates are
// skipped.
func LoadGazetteer(path string) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scout: open gazetteer: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	g := &Gazetteer{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scout: parse gazetteer: %w", err)
		}
		if len(record) < 3 || strings.EqualFold(strings.TrimSpace(record[0]), "name") {
			continue // header or malformed row
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(record[0])
		g.names = append(g.names, strings.ToLower(name))
		g.display = append(g.display, name)
		g.coords = append(g.coords, graph.Point{Lat: lat, Lon: lon})
	}
	return g, nil
}

// Lookup finds the best fuzzy match for mention among the gazetteer's
// entries. The first entry (in file order) that contains mention, or is
// contained in it, wins outright. Otherwise the entry with the smallest
// edit distance wins, the earlier entry on a tie. It returns ok=false if
// nothing is within the allowed edit distance for the mention's length.
func (g *Gazetteer) Lookup(mention string) (name string, coord graph.Point, ok bool) {
	mention = strings.ToLower(strings.TrimSpace(mention))
	if mention == "" {
		return "", graph.Point{}, false
	}

	best := -1
	bestDist := maxFuzzyDistance(len(mention)) + 1
	for i, candidate := range g.names {
		if strings.Contains(candidate, mention) || strings.Contains(mention, candidate) {
			best, bestDist = i, 0
			break
		}
		d := levenshtein.ComputeDistance(mention, candidate)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > maxFuzzyDistance(len(mention)) {
		return "", graph.Point{}, false
	}
	return g.display[best], g.coords[best], true
}
