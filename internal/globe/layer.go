package globe

import (
	"sync"

	"github.com/paulmach/orb"
)

// Visibility is the answer of a layer to whether it is within the current
// view.
type Visibility int

const (
	// VisibilityUndetermined is returned by layers that cannot decide yet,
	// for example because their configuration has not arrived.
	VisibilityUndetermined Visibility = iota
	VisibilityInView
	VisibilityOutOfView
)

func (v Visibility) String() string {
	switch v {
	case VisibilityInView:
		return "in-view"
	case VisibilityOutOfView:
		return "out-of-view"
	default:
		return "undetermined"
	}
}

// Layer is the method set the scene graph requires of a renderable layer.
type Layer interface {
	DisplayName() string
	// Refresh causes the layer's imagery to be re-retrieved from its origin.
	Refresh()
	DoRender(dc *DrawContext)
	IsLayerInView(dc *DrawContext) Visibility
}

// SurfaceTile is an image draped on the globe surface. The host retrieves
// the image from URL; a changed Generation means previously retrieved
// imagery is stale.
type SurfaceTile struct {
	Layer      string    `json:"layer"`
	Level      int       `json:"level"`
	Row        int       `json:"row"`
	Column     int       `json:"column"`
	Sector     orb.Bound `json:"sector"`
	URL        string    `json:"url"`
	Generation uint64    `json:"generation"`
}

// DrawContext carries the state of one frame.
type DrawContext struct {
	// VisibleSector is the part of the globe in view, lon/lat degrees.
	VisibleSector orb.Bound
	// TexelSize is the wanted resolution in degrees per pixel.
	TexelSize float64

	mu           sync.Mutex
	surfaceTiles []SurfaceTile
}

func NewDrawContext(visible orb.Bound, texelSize float64) *DrawContext {
	return &DrawContext{
		VisibleSector: visible,
		TexelSize:     texelSize,
	}
}

func (dc *DrawContext) AddSurfaceTile(tile SurfaceTile) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.surfaceTiles = append(dc.surfaceTiles, tile)
}

// SurfaceTiles returns the tiles added during this frame in order.
func (dc *DrawContext) SurfaceTiles() []SurfaceTile {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return append([]SurfaceTile(nil), dc.surfaceTiles...)
}
