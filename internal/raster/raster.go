// Package raster indexes the 72 georeferenced flood-depth tiles (4 return
// periods x 18 hourly time steps) and answers point- and edge-depth
// queries against them.
//
// Tiles are loaded lazily on first access and held in an LRU cache with a
// configurable capacity (default 16 resident tiles); there is no
// GeoTIFF/GIS library anywhere in the dependency set this service draws
// from, so tiles are stored on disk in a small gob-encoded grid plus a
// JSON geotransform/CRS header rather than as real GeoTIFFs.
package raster

import (
	"container/list"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kubilitics/kubilitics-ai/internal/graph"
)

// FloodEPS is the minimum depth, in meters, treated as "wet". Depths at or
// below this are reported as dry (nil).
const FloodEPS = 0.01

// ReturnPeriod is one of the four modeled flood scenarios.
type ReturnPeriod string

const (
	RR01 ReturnPeriod = "rr01"
	RR02 ReturnPeriod = "rr02"
	RR03 ReturnPeriod = "rr03"
	RR04 ReturnPeriod = "rr04"
)

// ValidReturnPeriods lists the only accepted scenario return periods.
var ValidReturnPeriods = map[ReturnPeriod]bool{
	RR01: true, RR02: true, RR03: true, RR04: true,
}

// TimeStep is the hour index (1..18) within a modeled storm.
type TimeStep int

const (
	MinTimeStep TimeStep = 1
	MaxTimeStep TimeStep = 18
)

// Key identifies one tile.
type Key struct {
	RP ReturnPeriod
	TS TimeStep
}

func (k Key) String() string { return fmt.Sprintf("%s-%d", k.RP, k.TS) }

// Errors surfaced by catalog operations.
var (
	ErrMissingRaster  = errors.New("raster: tile file missing")
	ErrProjectionErr  = errors.New("raster: bad projection or geotransform")
	ErrInvalidKey     = errors.New("raster: invalid return period or time step")
)

// GeoTransform maps (col,row) pixel coordinates to (x,y) in a projected
// CRS, in the standard six-parameter affine form:
//
//	x = OriginX + col*PixelWidth + row*RotX
//	y = OriginY + col*RotY       + row*PixelHeight
type GeoTransform struct {
	OriginX, OriginY       float64
	PixelWidth, PixelHeight float64
	RotX, RotY             float64
}

// Tile is one loaded flood-depth raster: a 2-D grid of depths in meters,
// non-negative, plus its geotransform and CRS tag.
type Tile struct {
	Key       Key
	Width     int
	Height    int
	Depths    []float32 // row-major, Width*Height
	Transform GeoTransform
	CRS       string
}

func (t *Tile) at(col, row int) (float32, bool) {
	if col < 0 || row < 0 || col >= t.Width || row >= t.Height {
		return 0, false
	}
	return t.Depths[row*t.Width+col], true
}

// TileLoader loads one tile from its backing store (disk, by default).
type TileLoader interface {
	Load(key Key) (*Tile, error)
}

// Catalog indexes tiles by (return_period, time_step) and answers
// point/edge depth queries, with an LRU cache bounding resident tile
// count.
type Catalog struct {
	loader TileLoader
	capacity int

	mu      sync.Mutex
	cache   map[Key]*list.Element
	order   *list.List // front = most recently used
}

type cacheEntry struct {
	key  Key
	tile *Tile
}

// NewCatalog constructs a Catalog backed by loader, with capacity resident
// tiles before LRU eviction kicks in.
func NewCatalog(loader TileLoader, capacity int) *Catalog {
	if capacity < 1 {
		capacity = 16
	}
	return &Catalog{
		loader:   loader,
		capacity: capacity,
		cache:    make(map[Key]*list.Element),
		order:    list.New(),
	}
}

// ValidateKey checks that rp/ts are within the accepted scenario range.
func ValidateKey(rp ReturnPeriod, ts TimeStep) error {
	if !ValidReturnPeriods[rp] {
		return fmt.Errorf("%w: return period %q", ErrInvalidKey, rp)
	}
	if ts < MinTimeStep || ts > MaxTimeStep {
		return fmt.Errorf("%w: time step %d", ErrInvalidKey, ts)
	}
	return nil
}

// tile returns the tile for key, loading and caching it on first access.
func (c *Catalog) tile(key Key) (*Tile, error) {
	if err := ValidateKey(key.RP, key.TS); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.cache[key]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.tile, nil
	}
	c.mu.Unlock()

	// Load outside the lock: loading is idempotent (double-loading on a
	// race is wasteful but harmless), and we don't want disk I/O holding
	// up unrelated cache lookups.
	t, err := c.loader.Load(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).tile, nil
	}
	el := c.order.PushFront(&cacheEntry{key: key, tile: t})
	c.cache[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
	return t, nil
}

// Depth transforms coord into the tile's pixel space and bilinearly
// samples it, returning nil if the point falls outside the raster or the
// sampled value is at or below FloodEPS.
func (c *Catalog) Depth(coord graph.Point, rp ReturnPeriod, ts TimeStep) (*float64, error) {
	t, err := c.tile(Key{RP: rp, TS: ts})
	if err != nil {
		return nil, err
	}

	col, row, err := projectToPixel(t, coord)
	if err != nil {
		return nil, err
	}

	v, ok := bilinearSample(t, col, row)
	if !ok {
		return nil, nil
	}
	if float64(v) <= FloodEPS {
		return nil, nil
	}
	d := float64(v)
	return &d, nil
}

// EdgeDepth samples every vertex of e's geometry (or the straight-line
// midpoint between its endpoints if geometry is absent) and reports the
// maximum wet depth found, or nil if every sample is dry, which is a
// strictly safer approximation of flood crossing than a single midpoint
// sample.
func (c *Catalog) EdgeDepth(e *graph.Edge, g *graph.Graph, rp ReturnPeriod, ts TimeStep) (*float64, error) {
	points := e.Geometry
	if len(points) == 0 {
		points = []graph.Point{e.Midpoint(g)}
	}

	var maxDepth *float64
	for _, p := range points {
		d, err := c.Depth(p, rp, ts)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		if maxDepth == nil || *d > *maxDepth {
			v := *d
			maxDepth = &v
		}
	}
	return maxDepth, nil
}

// projectToPixel maps a geographic coordinate into the tile's (col,row)
// pixel space by inverting its affine geotransform. Rotation terms are
// assumed zero in practice (north-up rasters); a non-invertible transform
// is reported as ErrProjectionErr.
func projectToPixel(t *Tile, coord graph.Point) (col, row float64, err error) {
	gt := t.Transform
	det := gt.PixelWidth*gt.PixelHeight - gt.RotX*gt.RotY
	if det == 0 {
		return 0, 0, ErrProjectionErr
	}
	// Geographic coords are used directly as the projected (x,y) when the
	// tile's CRS is already geographic; a true GIS pipeline would
	// reproject here. No CRS-transform library exists anywhere in this
	// service's dependency set, so CRS is carried as metadata only and
	// tiles are expected in the same geographic frame as the graph.
	x := coord.Lon - gt.OriginX
	y := coord.Lat - gt.OriginY

	col = (gt.PixelHeight*x - gt.RotX*y) / det
	row = (-gt.RotY*x + gt.PixelWidth*y) / det
	return col, row, nil
}

// bilinearSample samples t at fractional pixel coords (col,row); if the
// point lies entirely outside the valid neighborhood (no corner sample
// available), it returns ok=false.
func bilinearSample(t *Tile, col, row float64) (float32, bool) {
	c0 := int(math.Floor(col))
	r0 := int(math.Floor(row))
	c1, r1 := c0+1, r0+1

	v00, ok00 := t.at(c0, r0)
	v10, ok10 := t.at(c1, r0)
	v01, ok01 := t.at(c0, r1)
	v11, ok11 := t.at(c1, r1)

	if !ok00 && !ok10 && !ok01 && !ok11 {
		return 0, false
	}

	fc := col - float64(c0)
	fr := row - float64(r0)

	// Missing corners fall back to the nearest present corner so a point
	// straddling the raster edge still samples something reasonable.
	if !ok00 {
		v00 = firstPresent(v10, ok10, v01, ok01, v11, ok11)
	}
	if !ok10 {
		v10 = firstPresent(v00, ok00, v11, ok11, v01, ok01)
	}
	if !ok01 {
		v01 = firstPresent(v11, ok11, v00, ok00, v10, ok10)
	}
	if !ok11 {
		v11 = firstPresent(v01, ok01, v10, ok10, v00, ok00)
	}

	top := float64(v00)*(1-fc) + float64(v10)*fc
	bot := float64(v01)*(1-fc) + float64(v11)*fc
	return float32(top*(1-fr) + bot*fr), true
}

func firstPresent(a float32, okA bool, b float32, okB bool, c float32, okC bool) float32 {
	switch {
	case okA:
		return a
	case okB:
		return b
	case okC:
		return c
	default:
		return 0
	}
}

func clampToTile(t *Tile, col, row float64) (int, int) {
	c := int(math.Round(col))
	r := int(math.Round(row))
	if c < 0 {
		c = 0
	}
	if c >= t.Width {
		c = t.Width - 1
	}
	if r < 0 {
		r = 0
	}
	if r >= t.Height {
		r = t.Height - 1
	}
	return c, r
}
