package globe

import (
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delta10/globe-layers/internal/wms"
)

func testConfiguration(sector orb.Bound) *wms.LayerConfiguration {
	return &wms.LayerConfiguration{
		Service:          "https://neo.example/wms/wms",
		LayerNames:       "MOD_LSTD_CLIM_M",
		Title:            "Average Surface Temp",
		Version:          wms.Version,
		Sector:           sector,
		LevelZeroDelta:   wms.DefaultLevelZeroDelta,
		NumLevels:        wms.DefaultNumLevels,
		Format:           "image/png",
		Size:             wms.DefaultTileSize,
		CoordinateSystem: wms.CRSGeographic,
		LegendURL:        "https://neo.example/legend.png",
	}
}

func TestNewWMSLayerRejectsInvalidConfiguration(t *testing.T) {
	_, err := NewWMSLayer(nil)
	assert.Error(t, err)

	config := testConfiguration(wms.FullSphere)
	config.Size = 0
	_, err = NewWMSLayer(config)
	assert.Error(t, err)

	config = testConfiguration(wms.FullSphere)
	config.Service = "://bad"
	_, err = NewWMSLayer(config)
	assert.Error(t, err)
}

func TestWMSLayerAccessors(t *testing.T) {
	layer, err := NewWMSLayer(testConfiguration(wms.FullSphere))
	require.NoError(t, err)

	assert.Equal(t, "Average Surface Temp", layer.DisplayName())
	assert.Equal(t, "https://neo.example/legend.png", layer.LegendURL())
	assert.Equal(t, "MOD_LSTD_CLIM_M", layer.Configuration().LayerNames)
}

func TestWMSLayerIsLayerInView(t *testing.T) {
	crete := orb.Bound{Min: orb.Point{23.5, 35.2}, Max: orb.Point{24.5, 35.8}}
	layer, err := NewWMSLayer(testConfiguration(crete))
	require.NoError(t, err)

	tests := []struct {
		name    string
		visible orb.Bound
		want    Visibility
	}{
		{"overlapping", orb.Bound{Min: orb.Point{20, 30}, Max: orb.Point{30, 40}}, VisibilityInView},
		{"contained", orb.Bound{Min: orb.Point{23.9, 35.4}, Max: orb.Point{24, 35.5}}, VisibilityInView},
		{"disjoint", orb.Bound{Min: orb.Point{-10, 30}, Max: orb.Point{0, 40}}, VisibilityOutOfView},
		{"touching edge", orb.Bound{Min: orb.Point{24.5, 30}, Max: orb.Point{30, 40}}, VisibilityOutOfView},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, layer.IsLayerInView(NewDrawContext(tt.visible, 0.1)))
		})
	}
}

func TestWMSLayerDoRenderLevelZero(t *testing.T) {
	layer, err := NewWMSLayer(testConfiguration(wms.FullSphere))
	require.NoError(t, err)

	dc := NewDrawContext(wms.FullSphere, 1)
	layer.DoRender(dc)

	tiles := dc.SurfaceTiles()
	require.Len(t, tiles, 50)

	first := tiles[0]
	assert.Equal(t, 0, first.Level)
	assert.Equal(t, 0, first.Row)
	assert.Equal(t, 0, first.Column)
	assert.Equal(t, orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{-144, -54}}, first.Sector)

	parsed, err := url.Parse(first.URL)
	require.NoError(t, err)
	assert.Equal(t, "GetMap", parsed.Query().Get("REQUEST"))
	assert.Equal(t, "-90,-180,-54,-144", parsed.Query().Get("BBOX"))
	assert.Equal(t, "256", parsed.Query().Get("WIDTH"))
}

func TestWMSLayerDoRenderSelectsLevelByTexelSize(t *testing.T) {
	layer, err := NewWMSLayer(testConfiguration(wms.FullSphere))
	require.NoError(t, err)

	// 18 degree tiles at 256 pixels are 0.0703 degrees per texel.
	dc := NewDrawContext(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{18, 18}}, 0.1)
	layer.DoRender(dc)

	tiles := dc.SurfaceTiles()
	require.Len(t, tiles, 1)
	assert.Equal(t, 1, tiles[0].Level)
	assert.Equal(t, 5, tiles[0].Row)
	assert.Equal(t, 10, tiles[0].Column)
}

func TestWMSLayerDoRenderBoundsTileCount(t *testing.T) {
	layer, err := NewWMSLayer(testConfiguration(wms.FullSphere))
	require.NoError(t, err)

	dc := NewDrawContext(wms.FullSphere, 0.00001)
	layer.DoRender(dc)

	tiles := dc.SurfaceTiles()
	assert.NotEmpty(t, tiles)
	assert.LessOrEqual(t, len(tiles), MaxTilesPerFrame)
}

func TestWMSLayerDoRenderOutsideSector(t *testing.T) {
	crete := orb.Bound{Min: orb.Point{23.5, 35.2}, Max: orb.Point{24.5, 35.8}}
	layer, err := NewWMSLayer(testConfiguration(crete))
	require.NoError(t, err)

	dc := NewDrawContext(orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{0, 0}}, 1)
	layer.DoRender(dc)

	assert.Empty(t, dc.SurfaceTiles())
}

func TestWMSLayerRefresh(t *testing.T) {
	layer, err := NewWMSLayer(testConfiguration(wms.FullSphere))
	require.NoError(t, err)

	dc := NewDrawContext(wms.FullSphere, 1)
	layer.DoRender(dc)
	require.Equal(t, uint64(0), dc.SurfaceTiles()[0].Generation)

	layer.Refresh()
	layer.Refresh()
	assert.Equal(t, uint64(2), layer.Generation())

	dc = NewDrawContext(wms.FullSphere, 1)
	layer.DoRender(dc)
	for _, tile := range dc.SurfaceTiles() {
		assert.Equal(t, uint64(2), tile.Generation)
	}
}

func TestWMSLayerNonFiniteViews(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	crete := orb.Bound{Min: orb.Point{23.5, 35.2}, Max: orb.Point{24.5, 35.8}}
	huge := orb.Bound{Min: orb.Point{-1e300, -1e300}, Max: orb.Point{1e300, 1e300}}

	tests := []struct {
		name      string
		sector    orb.Bound
		visible   orb.Bound
		texelSize float64
		want      Visibility
		wantTiles int
	}{
		{"all NaN", wms.FullSphere, orb.Bound{Min: orb.Point{nan, nan}, Max: orb.Point{nan, nan}}, 1, VisibilityOutOfView, 0},
		{"partly NaN", wms.FullSphere, orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, nan}}, 1, VisibilityOutOfView, 0},
		{"NaN sector", orb.Bound{Min: orb.Point{nan, 0}, Max: orb.Point{10, 10}}, wms.FullSphere, 1, VisibilityOutOfView, 0},
		{"infinite view", wms.FullSphere, orb.Bound{Min: orb.Point{-inf, -inf}, Max: orb.Point{inf, inf}}, 1, VisibilityInView, 50},
		{"infinite view over small sector", crete, orb.Bound{Min: orb.Point{-inf, -inf}, Max: orb.Point{inf, inf}}, 1, VisibilityInView, 1},
		{"oversized sector", huge, orb.Bound{Min: orb.Point{-inf, -inf}, Max: orb.Point{inf, inf}}, 1, VisibilityInView, 50},
		{"oversized sector at fine texels", huge, huge, 0.00001, VisibilityInView, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, err := NewWMSLayer(testConfiguration(tt.sector))
			require.NoError(t, err)

			dc := NewDrawContext(tt.visible, tt.texelSize)
			assert.Equal(t, tt.want, layer.IsLayerInView(dc))

			done := make(chan struct{})
			go func() {
				defer close(done)
				layer.DoRender(dc)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("DoRender did not return")
			}

			tiles := dc.SurfaceTiles()
			assert.LessOrEqual(t, len(tiles), MaxTilesPerFrame)
			if tt.wantTiles >= 0 {
				assert.Len(t, tiles, tt.wantTiles)
			} else {
				assert.NotEmpty(t, tiles)
			}
		})
	}
}

func TestIntersection(t *testing.T) {
	nan := math.NaN()
	unit := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	tests := []struct {
		name string
		a, b orb.Bound
		want bool
	}{
		{"same", unit, unit, true},
		{"touching", unit, orb.Bound{Min: orb.Point{1, 0}, Max: orb.Point{2, 1}}, false},
		{"NaN min", unit, orb.Bound{Min: orb.Point{nan, 0}, Max: orb.Point{1, 1}}, false},
		{"NaN max", unit, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, nan}}, false},
		{"inverted", unit, orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{0, 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := intersection(tt.a, tt.b)
			assert.Equal(t, tt.want, ok)
		})
	}
}
