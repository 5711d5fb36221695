package flood

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
)

// HTTPSource polls a JSON telemetry feed and maps each record to a
// hydrological sample of a fixed kind. It covers all three upstreams the
// spec names (river gauges, rainfall stations, dam spillways); only the
// URL and Kind differ between them.
type HTTPSource struct {
	SourceName string
	Kind       hazard.StationKind
	URL        string
	Client     *http.Client
}

// NewHTTPSource builds a source with a sane default client. Callers that
// need custom transports (mTLS, proxies) can set Client directly.
func NewHTTPSource(name string, kind hazard.StationKind, url string) *HTTPSource {
	return &HTTPSource{
		SourceName: name,
		Kind:       kind,
		URL:        url,
		Client:     &http.Client{},
	}
}

func (s *HTTPSource) Name() string { return s.SourceName }

type telemetryRecord struct {
	StationID  string  `json:"station_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Location   string  `json:"location_name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Status     string  `json:"status"`
	ObservedAt string  `json:"observed_at"`
}

// Fetch performs a single GET against URL and parses the response as a
// JSON array of telemetry records. ctx's deadline (set by the collector's
// retry loop) governs the whole round trip.
func (s *HTTPSource) Fetch(ctx context.Context) ([]hazard.HydroSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("flood: build request for %s: %w", s.SourceName, err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flood: fetch %s: %w", s.SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flood: %s returned status %d", s.SourceName, resp.StatusCode)
	}

	var records []telemetryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("flood: decode %s response: %w", s.SourceName, err)
	}

	out := make([]hazard.HydroSample, 0, len(records))
	for _, r := range records {
		observed := time.Now()
		if r.ObservedAt != "" {
			if t, err := time.Parse(time.RFC3339, r.ObservedAt); err == nil {
				observed = t
			}
		}
		out = append(out, hazard.HydroSample{
			StationID:    r.StationID,
			Kind:         s.Kind,
			Coord:        graph.Point{Lat: r.Lat, Lon: r.Lon},
			LocationName: r.Location,
			Value:        coerceUnit(s.Kind, r.Value, r.Unit),
			Unit:         r.Unit,
			Status:       hazard.StationStatus(r.Status),
			ObservedAt:   observed,
		})
	}
	return out, nil
}

// coerceUnit normalizes the handful of unit variants the upstream feeds
// are known to use into the meters (river/dam depth) or mm/h (rainfall)
// the fusion core expects.
func coerceUnit(kind hazard.StationKind, value float64, unit string) float64 {
	switch unit {
	case "cm":
		return value / 100.0
	case "mm":
		if kind == hazard.StationRainfall {
			return value // already hourly accumulation in mm, treated as mm/h
		}
		return value / 1000.0
	default:
		return value
	}
}
