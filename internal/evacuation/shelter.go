package evacuation

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// Shelter is one row of the static evacuation center registry.
type Shelter struct {
	Name     string
	Coord    graph.Point
	Capacity int
	Type     string
	Barangay string
}

// LoadShelters reads the required columns name, lat, lon, capacity, type,
// barangay. Rows with a non-finite lat or lon are skipped rather than
// failing the whole load.
func LoadShelters(path string) ([]Shelter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evacuation: open shelter registry: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Shelter
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("evacuation: parse shelter registry: %w", err)
		}
		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "name") {
				continue
			}
		}
		if len(record) < 6 {
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if errLat != nil || errLon != nil || math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
			continue
		}
		capacity, _ := strconv.Atoi(strings.TrimSpace(record[3]))
		out = append(out, Shelter{
			Name:     strings.TrimSpace(record[0]),
			Coord:    graph.Point{Lat: lat, Lon: lon},
			Capacity: capacity,
			Type:     strings.TrimSpace(record[4]),
			Barangay: strings.TrimSpace(record[5]),
		})
	}
	return out, nil
}
