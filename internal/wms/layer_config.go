package wms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/delta10/globe-layers/internal/utils"
)

const (
	DefaultLevelZeroDelta = 36.0
	DefaultNumLevels      = 19
	DefaultTileSize       = 256

	CRSGeographic = "EPSG:4326"
	CRS84         = "CRS:84"
)

// Formats in order of preference when picking an image format for tiles.
var preferredFormats = []string{"image/png", "image/jpeg", "image/tiff", "image/gif"}

// Parameters owned by GetMapURL; copies already present on the service
// endpoint are dropped.
var getMapParams = []string{"service", "request", "version", "layers", "styles", "crs", "bbox", "width", "height", "format", "transparent"}

// FullSphere is the sector covering the whole globe in lon/lat degrees.
var FullSphere = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// LayerConfiguration is everything a tiled layer needs to issue GetMap
// requests for one named WMS layer.
type LayerConfiguration struct {
	Service          string    `json:"service"`
	LayerNames       string    `json:"layerNames"`
	StyleNames       string    `json:"styleNames"`
	Title            string    `json:"title"`
	Version          string    `json:"version"`
	Sector           orb.Bound `json:"sector"`
	LevelZeroDelta   float64   `json:"levelZeroDelta"`
	NumLevels        int       `json:"numLevels"`
	Format           string    `json:"format"`
	Formats          []string  `json:"formats"`
	Size             int       `json:"size"`
	CoordinateSystem string    `json:"coordinateSystem"`
	Transparent      bool      `json:"transparent"`
	LegendURL        string    `json:"legendUrl,omitempty"`
}

// FormLayerConfiguration derives the configuration for layer, which must
// have been obtained from caps.
func FormLayerConfiguration(caps *Capabilities, layer *Layer) (*LayerConfiguration, error) {
	service := caps.Capability.Request.GetMap.GetURL()
	if service == "" {
		return nil, &ParseError{Text: "capabilities document has no GetMap endpoint", Err: fmt.Errorf("layer %q", layer.Name)}
	}

	version := caps.Version
	if version == "" {
		version = Version
	}

	title := layer.Title
	if title == "" {
		title = layer.Name
	}

	formats := caps.Capability.Request.GetMap.Format

	return &LayerConfiguration{
		Service:          service,
		LayerNames:       layer.Name,
		Title:            title,
		Version:          version,
		Sector:           layerSector(layer),
		LevelZeroDelta:   DefaultLevelZeroDelta,
		NumLevels:        DefaultNumLevels,
		Format:           preferredFormat(formats),
		Formats:          formats,
		Size:             DefaultTileSize,
		CoordinateSystem: coordinateSystem(layer.CRS),
		Transparent:      layer.Opaque != "1" && layer.Opaque != "true",
		LegendURL:        legendURL(layer),
	}, nil
}

// GetMapURL builds the GetMap request for the given sector.
func (c *LayerConfiguration) GetMapURL(sector orb.Bound, width, height int) (string, error) {
	endpoint, err := url.Parse(c.Service)
	if err != nil {
		return "", err
	}

	query := endpoint.Query()
	for key := range query {
		if utils.StringInSlice(strings.ToLower(key), getMapParams) {
			query.Del(key)
		}
	}

	query.Set("SERVICE", "WMS")
	query.Set("REQUEST", "GetMap")
	query.Set("VERSION", c.Version)
	query.Set("LAYERS", c.LayerNames)
	query.Set("STYLES", c.StyleNames)
	query.Set("CRS", c.CoordinateSystem)
	query.Set("BBOX", c.bbox(sector))
	query.Set("WIDTH", strconv.Itoa(width))
	query.Set("HEIGHT", strconv.Itoa(height))
	query.Set("FORMAT", c.Format)
	query.Set("TRANSPARENT", strings.ToUpper(strconv.FormatBool(c.Transparent)))

	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// bbox formats a sector. WMS 1.3.0 EPSG:4326 uses lat/lon axis order.
func (c *LayerConfiguration) bbox(sector orb.Bound) string {
	values := []float64{sector.Min[0], sector.Min[1], sector.Max[0], sector.Max[1]}
	if c.CoordinateSystem == CRSGeographic && c.Version == Version {
		values = []float64{sector.Min[1], sector.Min[0], sector.Max[1], sector.Max[0]}
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func layerSector(layer *Layer) orb.Bound {
	if box := layer.EXGeographicBoundingBox; box != nil {
		return geographicSector(box.WestBoundLongitude, box.SouthBoundLatitude, box.EastBoundLongitude, box.NorthBoundLatitude)
	}

	for _, box := range layer.BoundingBox {
		switch box.CRS {
		case CRS84:
			return geographicSector(box.Minx, box.Miny, box.Maxx, box.Maxy)
		case CRSGeographic:
			return geographicSector(box.Miny, box.Minx, box.Maxy, box.Maxx)
		}
	}

	return FullSphere
}

// geographicSector builds a sector from bounds in degrees. A box crossing
// the antimeridian (west > east) covers every longitude.
func geographicSector(west, south, east, north float64) orb.Bound {
	if west > east {
		west, east = FullSphere.Min[0], FullSphere.Max[0]
	}
	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}
}

func preferredFormat(formats []string) string {
	for _, format := range preferredFormats {
		if utils.StringInSlice(format, formats) {
			return format
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return preferredFormats[0]
}

func coordinateSystem(crs []string) string {
	if utils.StringInSlice(CRS84, crs) && !utils.StringInSlice(CRSGeographic, crs) {
		return CRS84
	}
	return CRSGeographic
}

func legendURL(layer *Layer) string {
	if len(layer.Style) == 0 || len(layer.Style[0].LegendURL) == 0 {
		return ""
	}
	return layer.Style[0].LegendURL[0].OnlineResource.Href
}
