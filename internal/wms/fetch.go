package wms

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/delta10/globe-layers/internal/utils"
)

const DefaultTimeout = 25 * time.Second

// Fetcher retrieves and parses capabilities documents.
type Fetcher struct {
	Client *http.Client
	// Header is added to every capabilities request.
	Header http.Header
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Fetcher{
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// CapabilitiesURL adds the GetCapabilities parameters to serviceAddress
// unless they are already present in any letter case.
func CapabilitiesURL(serviceAddress string) (string, error) {
	parsed, err := url.Parse(serviceAddress)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	present := utils.QueryParamsToLower(query)

	defaults := []struct{ key, value string }{
		{"SERVICE", "WMS"},
		{"REQUEST", "GetCapabilities"},
		{"VERSION", Version},
	}
	for _, d := range defaults {
		if present.Get(strings.ToLower(d.key)) == "" {
			query.Set(d.key, d.value)
		}
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Fetch issues a GetCapabilities request against serviceAddress.
func (f *Fetcher) Fetch(ctx context.Context, serviceAddress string) (*Capabilities, error) {
	capabilitiesURL, err := CapabilitiesURL(serviceAddress)
	if err != nil {
		return nil, &TransportError{Text: "could not parse service address", Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, capabilitiesURL, nil)
	if err != nil {
		return nil, &TransportError{Text: "could not construct capabilities request", Err: err}
	}

	for key, values := range f.Header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(request)
	if err != nil {
		return nil, &TransportError{Text: "could not fetch capabilities document", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Text: "unexpected response status",
			Err:  fmt.Errorf("%s returned %s", capabilitiesURL, resp.Status),
		}
	}

	caps := &Capabilities{}
	if err := xml.NewDecoder(resp.Body).Decode(caps); err != nil {
		return nil, &ParseError{Text: "could not decode capabilities document", Err: err}
	}

	return caps, nil
}

// ResolveLayer looks up a named layer and forms its configuration.
func ResolveLayer(caps *Capabilities, name string) (*LayerConfiguration, error) {
	layer, ok := caps.NamedLayer(name)
	if !ok {
		return nil, &ParseError{Text: fmt.Sprintf("could not find layer %q", name), Err: ErrLayerNotFound}
	}

	return FormLayerConfiguration(caps, layer)
}
