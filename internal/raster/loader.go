package raster

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileHeader is the JSON sidecar next to each tile's gob-encoded depth
// grid: geotransform and CRS, plus the grid dimensions needed to validate
// the gob payload.
type fileHeader struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Transform GeoTransform `json:"transform"`
	CRS       string       `json:"crs"`
}

// FileTileLoader loads tiles from <dir>/<rp>/<rp>-<ts>.tile (gob-encoded
// []float32 grid) with a matching <rp>-<ts>.json header.
type FileTileLoader struct {
	Dir string
}

func (l *FileTileLoader) Load(key Key) (*Tile, error) {
	base := filepath.Join(l.Dir, string(key.RP), fmt.Sprintf("%s-%d", key.RP, key.TS))

	headerPath := base + ".json"
	headerBytes, err := os.ReadFile(headerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingRaster, headerPath)
		}
		return nil, fmt.Errorf("raster: read header %s: %w", headerPath, err)
	}
	var hdr fileHeader
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, fmt.Errorf("%w: bad header %s: %v", ErrProjectionErr, headerPath, err)
	}

	dataPath := base + ".tile"
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingRaster, dataPath)
		}
		return nil, fmt.Errorf("raster: open tile %s: %w", dataPath, err)
	}
	defer f.Close()

	var depths []float32
	if err := gob.NewDecoder(f).Decode(&depths); err != nil {
		return nil, fmt.Errorf("raster: decode tile %s: %w", dataPath, err)
	}
	if len(depths) != hdr.Width*hdr.Height {
		return nil, fmt.Errorf("%w: tile %s grid size mismatch", ErrProjectionErr, dataPath)
	}

	return &Tile{
		Key:       key,
		Width:     hdr.Width,
		Height:    hdr.Height,
		Depths:    depths,
		Transform: hdr.Transform,
		CRS:       hdr.CRS,
	}, nil
}

// WriteTile persists a tile in this catalog's on-disk format; used by
// tooling and tests that need to seed a floodmaps directory.
func WriteTile(dir string, t *Tile) error {
	rpDir := filepath.Join(dir, string(t.Key.RP))
	if err := os.MkdirAll(rpDir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(rpDir, fmt.Sprintf("%s-%d", t.Key.RP, t.Key.TS))

	hdr := fileHeader{Width: t.Width, Height: t.Height, Transform: t.Transform, CRS: t.CRS}
	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".json", hdrBytes, 0o644); err != nil {
		return err
	}

	f, err := os.Create(base + ".tile")
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(t.Depths)
}
