package globe

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync"

	"github.com/paulmach/orb"

	"github.com/delta10/globe-layers/internal/wms"
)

// MaxTilesPerFrame bounds the tiles one layer emits into a frame. Levels
// are coarsened until the view fits.
const MaxTilesPerFrame = 512

type tileKey struct {
	level, row, column int
}

// WMSLayer is a tiled image layer over a WMS GetMap endpoint. Level 0 tiles
// span LevelZeroDelta degrees and each following level halves that.
type WMSLayer struct {
	config *wms.LayerConfiguration

	mu         sync.Mutex
	tiles      map[tileKey]SurfaceTile
	generation uint64
}

func NewWMSLayer(config *wms.LayerConfiguration) (*WMSLayer, error) {
	if config == nil {
		return nil, errors.New("missing layer configuration")
	}
	if config.Size <= 0 || config.NumLevels <= 0 || config.LevelZeroDelta <= 0 {
		return nil, fmt.Errorf("invalid level set for layer %s: size %d, levels %d, level zero delta %v",
			config.LayerNames, config.Size, config.NumLevels, config.LevelZeroDelta)
	}
	if _, err := url.Parse(config.Service); err != nil {
		return nil, fmt.Errorf("invalid GetMap endpoint for layer %s: %w", config.LayerNames, err)
	}

	return &WMSLayer{
		config: config,
		tiles:  map[tileKey]SurfaceTile{},
	}, nil
}

func (l *WMSLayer) DisplayName() string {
	return l.config.Title
}

func (l *WMSLayer) Configuration() *wms.LayerConfiguration {
	return l.config
}

func (l *WMSLayer) LegendURL() string {
	return l.config.LegendURL
}

// Generation is bumped by every Refresh.
func (l *WMSLayer) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.generation
}

func (l *WMSLayer) Refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tiles = map[tileKey]SurfaceTile{}
	l.generation++
}

func (l *WMSLayer) IsLayerInView(dc *DrawContext) Visibility {
	if _, ok := intersection(l.config.Sector, dc.VisibleSector); ok {
		return VisibilityInView
	}
	return VisibilityOutOfView
}

func (l *WMSLayer) DoRender(dc *DrawContext) {
	region, ok := intersection(l.config.Sector, dc.VisibleSector)
	if !ok {
		return
	}
	region, ok = intersection(region, wms.FullSphere)
	if !ok {
		return
	}

	level := l.levelFor(dc.TexelSize)
	for level > 0 && tileCount(region, l.tileDelta(level)) > MaxTilesPerFrame {
		level--
	}

	delta := l.tileDelta(level)
	firstRow, lastRow := tileRange(region.Min[1]+90, region.Max[1]+90, delta)
	firstCol, lastCol := tileRange(region.Min[0]+180, region.Max[0]+180, delta)

	l.mu.Lock()
	defer l.mu.Unlock()

	for row := firstRow; row <= lastRow; row++ {
		for col := firstCol; col <= lastCol; col++ {
			tile, err := l.tile(tileKey{level: level, row: row, column: col}, delta)
			if err != nil {
				continue
			}
			dc.AddSurfaceTile(tile)
		}
	}
}

// tile must be called with l.mu held.
func (l *WMSLayer) tile(key tileKey, delta float64) (SurfaceTile, error) {
	if tile, ok := l.tiles[key]; ok {
		return tile, nil
	}

	sector := orb.Bound{
		Min: orb.Point{-180 + float64(key.column)*delta, -90 + float64(key.row)*delta},
		Max: orb.Point{-180 + float64(key.column+1)*delta, -90 + float64(key.row+1)*delta},
	}

	getMapURL, err := l.config.GetMapURL(sector, l.config.Size, l.config.Size)
	if err != nil {
		return SurfaceTile{}, err
	}

	tile := SurfaceTile{
		Layer:      l.config.LayerNames,
		Level:      key.level,
		Row:        key.row,
		Column:     key.column,
		Sector:     sector,
		URL:        getMapURL,
		Generation: l.generation,
	}
	l.tiles[key] = tile
	return tile, nil
}

func (l *WMSLayer) tileDelta(level int) float64 {
	return l.config.LevelZeroDelta / math.Pow(2, float64(level))
}

// levelFor picks the coarsest level whose texels are no larger than
// texelSize.
func (l *WMSLayer) levelFor(texelSize float64) int {
	if texelSize <= 0 {
		return 0
	}

	for level := 0; level < l.config.NumLevels; level++ {
		if l.tileDelta(level)/float64(l.config.Size) <= texelSize {
			return level
		}
	}
	return l.config.NumLevels - 1
}

func tileRange(min, max, delta float64) (int, int) {
	first := int(math.Floor(min / delta))
	last := int(math.Ceil(max/delta)) - 1
	if last < first {
		last = first
	}
	return first, last
}

func tileCount(region orb.Bound, delta float64) int {
	firstRow, lastRow := tileRange(region.Min[1]+90, region.Max[1]+90, delta)
	firstCol, lastCol := tileRange(region.Min[0]+180, region.Max[0]+180, delta)
	return (lastRow - firstRow + 1) * (lastCol - firstCol + 1)
}

// intersection returns the overlap of two sectors. Sectors that only touch
// along an edge do not overlap, and neither does anything involving NaN.
func intersection(a, b orb.Bound) (orb.Bound, bool) {
	result := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	if !(result.Min[0] < result.Max[0] && result.Min[1] < result.Max[1]) {
		return orb.Bound{}, false
	}
	return result, true
}
