package api

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/itchyny/gojq"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delta10/globe-layers/internal/globe"
	"github.com/delta10/globe-layers/internal/remote"
	"github.com/delta10/globe-layers/internal/utils"
	"github.com/delta10/globe-layers/internal/wms"
)

// Entry is a remote layer published under Name.
type Entry struct {
	Name  string
	Layer *remote.Layer
}

type LayerStatus struct {
	Name            string                  `json:"name"`
	DisplayName     string                  `json:"displayName"`
	ServiceAddress  string                  `json:"serviceAddress"`
	LayerIdentifier string                  `json:"layerIdentifier"`
	State           string                  `json:"state"`
	Enabled         bool                    `json:"enabled"`
	Error           string                  `json:"error,omitempty"`
	LegendURL       string                  `json:"legendUrl,omitempty"`
	Configuration   *wms.LayerConfiguration `json:"configuration,omitempty"`
}

type TilesResponse struct {
	Visibility string              `json:"visibility"`
	Tiles      []globe.SurfaceTile `json:"tiles"`
}

type Server struct {
	scene         *globe.LayerList
	entries       []Entry
	byName        map[string]*remote.Layer
	filter        *gojq.Query
	keyfunc       jwt.Keyfunc
	allowedGroups []string
}

type Options struct {
	// Filter is a jq expression applied to the layer listing.
	Filter string
	// Keyfunc verifies bearer tokens. Requests are not authenticated when
	// it is nil.
	Keyfunc       jwt.Keyfunc
	AllowedGroups []string
}

func NewServer(scene *globe.LayerList, entries []Entry, options Options) (*Server, error) {
	s := &Server{
		scene:         scene,
		entries:       entries,
		byName:        map[string]*remote.Layer{},
		keyfunc:       options.Keyfunc,
		allowedGroups: options.AllowedGroups,
	}

	for _, e := range entries {
		s.byName[e.Name] = e.Layer
	}

	if options.Filter != "" {
		query, err := gojq.Parse(options.Filter)
		if err != nil {
			return nil, fmt.Errorf("could not parse filter: %w", err)
		}
		s.filter = query
	}

	return s, nil
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	layers := router.PathPrefix("/").Subrouter()
	if s.keyfunc != nil {
		layers.Use(authenticate(s.keyfunc, s.allowedGroups))
	}

	layers.HandleFunc("/layers", s.listLayers).Methods(http.MethodGet)
	layers.HandleFunc("/layers/{name}", s.getLayer).Methods(http.MethodGet)
	layers.HandleFunc("/layers/{name}/refresh", s.refreshLayer).Methods(http.MethodPost)
	layers.HandleFunc("/layers/{name}/enable", s.setEnabled(true)).Methods(http.MethodPost)
	layers.HandleFunc("/layers/{name}/disable", s.setEnabled(false)).Methods(http.MethodPost)
	layers.HandleFunc("/layers/{name}/tiles", s.layerTiles).Methods(http.MethodGet)
	layers.HandleFunc("/layers/{name}/legend", s.layerLegend).Methods(http.MethodGet)
	layers.HandleFunc("/tiles", s.sceneTiles).Methods(http.MethodGet)

	return router
}

func (s *Server) status(name string, layer *remote.Layer) LayerStatus {
	d := layer.Descriptor()
	status := LayerStatus{
		Name:            name,
		DisplayName:     layer.DisplayName(),
		ServiceAddress:  d.ServiceAddress,
		LayerIdentifier: d.LayerIdentifier,
		State:           layer.State().String(),
		Enabled:         s.scene.Enabled(layer),
		LegendURL:       layer.LegendURL(),
	}

	if err := layer.Err(); err != nil {
		status.Error = err.Error()
	}

	if config, ok := layer.Configuration(); ok {
		status.Configuration = config
	}

	return status
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *remote.Layer, bool) {
	name := mux.Vars(r)["name"]
	layer, ok := s.byName[name]
	if !ok {
		writeError(w, http.StatusNotFound, "could not find layer: "+name)
		return "", nil, false
	}
	return name, layer, true
}

func (s *Server) listLayers(w http.ResponseWriter, r *http.Request) {
	statuses := make([]LayerStatus, 0, len(s.entries))
	for _, e := range s.entries {
		statuses = append(statuses, s.status(e.Name, e.Layer))
	}

	if s.filter == nil {
		writeJSON(w, http.StatusOK, statuses)
		return
	}

	filtered, err := s.applyFilter(statuses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not apply filter")
		return
	}

	writeJSON(w, http.StatusOK, filtered)
}

// applyFilter runs the jq filter over v and returns its single result, or
// all results as an array when it yields more than one.
func (s *Server) applyFilter(v any) (any, error) {
	marshalled, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(marshalled, &input); err != nil {
		return nil, err
	}

	results := []any{}
	iter := s.filter.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}

		if _, ok := v.(error); ok {
			continue
		}

		results = append(results, v)
	}

	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

func (s *Server) getLayer(w http.ResponseWriter, r *http.Request) {
	name, layer, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.status(name, layer))
}

func (s *Server) refreshLayer(w http.ResponseWriter, r *http.Request) {
	name, layer, ok := s.lookup(w, r)
	if !ok {
		return
	}

	layer.Refresh()
	writeJSON(w, http.StatusAccepted, s.status(name, layer))
}

func (s *Server) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, layer, ok := s.lookup(w, r)
		if !ok {
			return
		}

		s.scene.SetEnabled(layer, enabled)
		writeJSON(w, http.StatusOK, s.status(name, layer))
	}
}

func (s *Server) layerTiles(w http.ResponseWriter, r *http.Request) {
	_, layer, ok := s.lookup(w, r)
	if !ok {
		return
	}

	dc, err := drawContextFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	visibility := layer.IsLayerInView(dc)
	if visibility == globe.VisibilityInView {
		layer.DoRender(dc)
	}

	writeJSON(w, http.StatusOK, TilesResponse{
		Visibility: visibility.String(),
		Tiles:      nonNil(dc.SurfaceTiles()),
	})
}

func (s *Server) sceneTiles(w http.ResponseWriter, r *http.Request) {
	dc, err := drawContextFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.scene.Render(dc)

	writeJSON(w, http.StatusOK, TilesResponse{
		Visibility: globe.VisibilityInView.String(),
		Tiles:      nonNil(dc.SurfaceTiles()),
	})
}

func (s *Server) layerLegend(w http.ResponseWriter, r *http.Request) {
	_, layer, ok := s.lookup(w, r)
	if !ok {
		return
	}

	legendURL := layer.LegendURL()
	if legendURL == "" {
		writeError(w, http.StatusNotFound, "layer has no legend")
		return
	}

	http.Redirect(w, r, legendURL, http.StatusFound)
}

// drawContextFromQuery reads bbox=west,south,east,north and an optional
// texelSize in degrees per pixel.
func drawContextFromQuery(r *http.Request) (*globe.DrawContext, error) {
	if utils.QueryParamsContainMultipleKeys(r.URL.Query()) {
		return nil, fmt.Errorf("query parameters contain multiple keys")
	}

	query := utils.QueryParamsToLower(r.URL.Query())

	visible := wms.FullSphere
	if raw := query.Get("bbox"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("bbox must be west,south,east,north")
		}

		values := make([]float64, 4)
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || !finite(v) {
				return nil, fmt.Errorf("could not parse bbox: %s", part)
			}
			values[i] = v
		}

		if values[0] >= values[2] || values[1] >= values[3] {
			return nil, fmt.Errorf("bbox is empty")
		}
		visible = orb.Bound{Min: orb.Point{values[0], values[1]}, Max: orb.Point{values[2], values[3]}}
	}

	var texelSize float64
	if raw := query.Get("texelsize"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !finite(v) || v < 0 {
			return nil, fmt.Errorf("could not parse texelSize: %s", raw)
		}
		texelSize = v
	}

	return globe.NewDrawContext(visible, texelSize), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNil(tiles []globe.SurfaceTile) []globe.SurfaceTile {
	if tiles == nil {
		return []globe.SurfaceTile{}
	}
	return tiles
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s %s", utils.ReadUserIP(r), r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	response, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not marshal json")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(response)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	resp := make(map[string]string)
	resp["message"] = message
	jsonResp, err := json.Marshal(resp)
	if err != nil {
		log.Printf("could not marshal error response: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonResp)
}
