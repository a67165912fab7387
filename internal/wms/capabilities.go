package wms

import (
	"encoding/xml"

	"github.com/delta10/globe-layers/internal/utils"
)

const Version = "1.3.0"

type Capabilities struct {
	XMLName        xml.Name   `xml:"WMS_Capabilities"`
	Version        string     `xml:"version,attr"`
	UpdateSequence string     `xml:"updateSequence,attr"`
	Service        Service    `xml:"Service"`
	Capability     Capability `xml:"Capability"`
}

type Service struct {
	Name              string         `xml:"Name"`
	Title             string         `xml:"Title"`
	Abstract          string         `xml:"Abstract"`
	KeywordList       KeywordList    `xml:"KeywordList"`
	OnlineResource    OnlineResource `xml:"OnlineResource"`
	Fees              string         `xml:"Fees"`
	AccessConstraints string         `xml:"AccessConstraints"`
	MaxWidth          int            `xml:"MaxWidth"`
	MaxHeight         int            `xml:"MaxHeight"`
}

type KeywordList struct {
	Keyword []string `xml:"Keyword"`
}

type OnlineResource struct {
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
}

type Capability struct {
	Request   Request   `xml:"Request"`
	Exception Exception `xml:"Exception"`
	Layer     Layer     `xml:"Layer"`
}

type Request struct {
	GetCapabilities Operation `xml:"GetCapabilities"`
	GetMap          Operation `xml:"GetMap"`
	GetFeatureInfo  Operation `xml:"GetFeatureInfo"`
}

type Operation struct {
	Format  []string `xml:"Format"`
	DCPType struct {
		HTTP struct {
			Get struct {
				OnlineResource OnlineResource `xml:"OnlineResource"`
			} `xml:"Get"`
			Post struct {
				OnlineResource OnlineResource `xml:"OnlineResource"`
			} `xml:"Post"`
		} `xml:"HTTP"`
	} `xml:"DCPType"`
}

// GetURL returns the HTTP GET endpoint of the operation.
func (o Operation) GetURL() string {
	return o.DCPType.HTTP.Get.OnlineResource.Href
}

type Exception struct {
	Format []string `xml:"Format"`
}

// Layer is a WMS layer. Layers nest; a child inherits CRS, bounding box,
// styles and dimensions from its ancestors.
type Layer struct {
	Queryable               string                 `xml:"queryable,attr"`
	Opaque                  string                 `xml:"opaque,attr"`
	Cascaded                string                 `xml:"cascaded,attr"`
	Name                    string                 `xml:"Name"`
	Title                   string                 `xml:"Title"`
	Abstract                string                 `xml:"Abstract"`
	KeywordList             KeywordList            `xml:"KeywordList"`
	CRS                     []string               `xml:"CRS"`
	EXGeographicBoundingBox *GeographicBoundingBox `xml:"EX_GeographicBoundingBox"`
	BoundingBox             []BoundingBox          `xml:"BoundingBox"`
	Dimension               []Dimension            `xml:"Dimension"`
	Style                   []Style                `xml:"Style"`
	MaxScaleDenominator     string                 `xml:"MaxScaleDenominator"`
	MinScaleDenominator     string                 `xml:"MinScaleDenominator"`
	Layer                   []Layer                `xml:"Layer"`
}

type GeographicBoundingBox struct {
	WestBoundLongitude float64 `xml:"westBoundLongitude"`
	EastBoundLongitude float64 `xml:"eastBoundLongitude"`
	SouthBoundLatitude float64 `xml:"southBoundLatitude"`
	NorthBoundLatitude float64 `xml:"northBoundLatitude"`
}

type BoundingBox struct {
	CRS  string  `xml:"CRS,attr"`
	Minx float64 `xml:"minx,attr"`
	Miny float64 `xml:"miny,attr"`
	Maxx float64 `xml:"maxx,attr"`
	Maxy float64 `xml:"maxy,attr"`
}

type Dimension struct {
	Name    string `xml:"name,attr"`
	Units   string `xml:"units,attr"`
	Default string `xml:"default,attr"`
	Values  string `xml:",chardata"`
}

type Style struct {
	Name      string      `xml:"Name"`
	Title     string      `xml:"Title"`
	Abstract  string      `xml:"Abstract"`
	LegendURL []LegendURL `xml:"LegendURL"`
}

type LegendURL struct {
	Width          int            `xml:"width,attr"`
	Height         int            `xml:"height,attr"`
	Format         string         `xml:"Format"`
	OnlineResource OnlineResource `xml:"OnlineResource"`
}

// NamedLayer returns the layer with the given name, with inherited
// properties of its ancestors resolved.
func (c *Capabilities) NamedLayer(name string) (*Layer, bool) {
	if name == "" {
		return nil, false
	}
	return findNamedLayer(&c.Capability.Layer, nil, name)
}

// NamedLayers lists the names of all named layers, depth first.
func (c *Capabilities) NamedLayers() []string {
	var names []string
	var walk func(l *Layer)
	walk = func(l *Layer) {
		if l.Name != "" {
			names = append(names, l.Name)
		}
		for i := range l.Layer {
			walk(&l.Layer[i])
		}
	}
	walk(&c.Capability.Layer)
	return names
}

func findNamedLayer(layer, parent *Layer, name string) (*Layer, bool) {
	resolved := layer.inherit(parent)
	if layer.Name == name {
		resolved.Layer = nil
		return resolved, true
	}

	for i := range layer.Layer {
		if found, ok := findNamedLayer(&layer.Layer[i], resolved, name); ok {
			return found, true
		}
	}

	return nil, false
}

// inherit returns a shallow copy of l with the properties it inherits
// from parent filled in.
func (l *Layer) inherit(parent *Layer) *Layer {
	resolved := *l
	if parent == nil {
		return &resolved
	}

	resolved.CRS = unionStrings(parent.CRS, l.CRS)

	if resolved.EXGeographicBoundingBox == nil {
		resolved.EXGeographicBoundingBox = parent.EXGeographicBoundingBox
	}

	if len(resolved.BoundingBox) == 0 {
		resolved.BoundingBox = parent.BoundingBox
	}

	styles := append([]Style{}, l.Style...)
	for _, style := range parent.Style {
		if !hasStyle(styles, style.Name) {
			styles = append(styles, style)
		}
	}
	resolved.Style = styles

	dimensions := append([]Dimension{}, l.Dimension...)
	for _, dimension := range parent.Dimension {
		if !hasDimension(dimensions, dimension.Name) {
			dimensions = append(dimensions, dimension)
		}
	}
	resolved.Dimension = dimensions

	return &resolved
}

func unionStrings(a, b []string) []string {
	result := append([]string{}, a...)
	for _, s := range b {
		if !utils.StringInSlice(s, result) {
			result = append(result, s)
		}
	}
	return result
}

func hasStyle(styles []Style, name string) bool {
	for _, style := range styles {
		if style.Name == name {
			return true
		}
	}
	return false
}

func hasDimension(dimensions []Dimension, name string) bool {
	for _, dimension := range dimensions {
		if dimension.Name == name {
			return true
		}
	}
	return false
}
