package globe

import "sync"

type entry struct {
	layer   Layer
	enabled bool
}

// LayerList is the ordered set of layers drawn into every frame.
type LayerList struct {
	mu      sync.RWMutex
	entries []*entry
}

func NewLayerList() *LayerList {
	return &LayerList{}
}

// Add appends an enabled layer.
func (l *LayerList) Add(layer Layer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, &entry{layer: layer, enabled: true})
}

func (l *LayerList) Layers() []Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	layers := make([]Layer, 0, len(l.entries))
	for _, e := range l.entries {
		layers = append(layers, e.layer)
	}
	return layers
}

// SetEnabled reports whether layer is part of the list.
func (l *LayerList) SetEnabled(layer Layer, enabled bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.layer == layer {
			e.enabled = enabled
			return true
		}
	}
	return false
}

func (l *LayerList) Enabled(layer Layer) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.layer == layer {
			return e.enabled
		}
	}
	return false
}

// Render draws every enabled layer that reports itself in view. Layers
// whose visibility is undetermined are skipped.
func (l *LayerList) Render(dc *DrawContext) {
	for _, layer := range l.enabledLayers() {
		Render(layer, dc)
	}
}

func (l *LayerList) Refresh() {
	for _, layer := range l.Layers() {
		layer.Refresh()
	}
}

func (l *LayerList) enabledLayers() []Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var layers []Layer
	for _, e := range l.entries {
		if e.enabled {
			layers = append(layers, e.layer)
		}
	}
	return layers
}

// Render draws a single layer if it is in view and reports whether it did.
func Render(layer Layer, dc *DrawContext) bool {
	if layer.IsLayerInView(dc) != VisibilityInView {
		return false
	}

	layer.DoRender(dc)
	return true
}
