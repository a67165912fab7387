package wms

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLayer(t *testing.T) {
	caps := loadCapabilities(t)

	config, err := ResolveLayer(caps, "geonode:poseidonia1999")
	require.NoError(t, err)

	want := &LayerConfiguration{
		Service:          "http://senselab.example/geoserver/ows?SERVICE=WMS&",
		LayerNames:       "geonode:poseidonia1999",
		Title:            "Ποσειδωνία 1999",
		Version:          "1.3.0",
		Sector:           orb.Bound{Min: orb.Point{23.5, 35.2}, Max: orb.Point{24.5, 35.8}},
		LevelZeroDelta:   36,
		NumLevels:        19,
		Format:           "image/png",
		Formats:          []string{"image/jpeg", "image/png", "image/gif"},
		Size:             256,
		CoordinateSystem: "EPSG:4326",
		Transparent:      true,
		LegendURL:        "http://senselab.example/geoserver/ows?service=WMS&request=GetLegendGraphic&format=image%2Fpng&width=20&height=20&layer=geonode%3Aposeidonia1999",
	}

	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("ResolveLayer() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveLayerOpaqueWithoutLegend(t *testing.T) {
	caps := loadCapabilities(t)

	config, err := ResolveLayer(caps, "MOD_LSTD_CLIM_M")
	require.NoError(t, err)

	assert.False(t, config.Transparent)
	assert.Empty(t, config.LegendURL)
	assert.Equal(t, FullSphere, config.Sector)
	assert.Equal(t, "Average Land Surface Temperature [Day]", config.Title)
}

func TestResolveLayerMissing(t *testing.T) {
	caps := loadCapabilities(t)

	_, err := ResolveLayer(caps, "X")
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.True(t, errors.Is(err, ErrLayerNotFound))
	assert.Contains(t, err.Error(), `"X"`)
}

func TestFormLayerConfigurationWithoutGetMap(t *testing.T) {
	caps := loadCapabilities(t)
	caps.Capability.Request.GetMap = Operation{}

	layer, ok := caps.NamedLayer("MOD_LSTD_CLIM_M")
	require.True(t, ok)

	_, err := FormLayerConfiguration(caps, layer)
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestPreferredFormat(t *testing.T) {
	assert.Equal(t, "image/png", preferredFormat([]string{"image/gif", "image/png"}))
	assert.Equal(t, "image/jpeg", preferredFormat([]string{"image/gif", "image/jpeg"}))
	assert.Equal(t, "image/webp", preferredFormat([]string{"image/webp"}))
	assert.Equal(t, "image/png", preferredFormat(nil))
}

func TestCoordinateSystem(t *testing.T) {
	assert.Equal(t, CRSGeographic, coordinateSystem([]string{"CRS:84", "EPSG:4326"}))
	assert.Equal(t, CRS84, coordinateSystem([]string{"CRS:84", "EPSG:3857"}))
	assert.Equal(t, CRSGeographic, coordinateSystem(nil))
}

func TestGetMapURL(t *testing.T) {
	config := &LayerConfiguration{
		Service:          "http://senselab.example/geoserver/ows?SERVICE=WMS&map=sense&layers=stale",
		LayerNames:       "geonode:poseidonia1999",
		Version:          "1.3.0",
		Format:           "image/png",
		CoordinateSystem: CRSGeographic,
		Transparent:      true,
	}

	sector := orb.Bound{Min: orb.Point{18, -36}, Max: orb.Point{54, 0}}

	raw, err := config.GetMapURL(sector, 256, 256)
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "senselab.example", parsed.Host)
	assert.Equal(t, "/geoserver/ows", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, url.Values{
		"SERVICE":     {"WMS"},
		"REQUEST":     {"GetMap"},
		"VERSION":     {"1.3.0"},
		"LAYERS":      {"geonode:poseidonia1999"},
		"STYLES":      {""},
		"CRS":         {"EPSG:4326"},
		"BBOX":        {"-36,18,0,54"},
		"WIDTH":       {"256"},
		"HEIGHT":      {"256"},
		"FORMAT":      {"image/png"},
		"TRANSPARENT": {"TRUE"},
		"map":         {"sense"},
	}, query)
}

func TestGetMapURLCRS84AxisOrder(t *testing.T) {
	config := &LayerConfiguration{
		Service:          "https://neo.example/wms/wms",
		LayerNames:       "MOD_LSTD_CLIM_M",
		Version:          "1.3.0",
		Format:           "image/jpeg",
		CoordinateSystem: CRS84,
	}

	raw, err := config.GetMapURL(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{-144, -54}}, 256, 256)
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "-180,-90,-144,-54", parsed.Query().Get("BBOX"))
	assert.Equal(t, "FALSE", parsed.Query().Get("TRANSPARENT"))
}

func TestGetMapURLInvalidService(t *testing.T) {
	config := &LayerConfiguration{Service: "://bad"}

	_, err := config.GetMapURL(FullSphere, 256, 256)
	assert.Error(t, err)
}
