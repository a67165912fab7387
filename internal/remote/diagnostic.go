package remote

import (
	"errors"
	"fmt"

	"github.com/delta10/globe-layers/internal/wms"
)

// Diagnostic formats the message logged when a layer stays pending.
func Diagnostic(d Descriptor, err error) string {
	name := d.DisplayName
	if name == "" {
		name = d.LayerIdentifier
	}

	text, exception := split(err)
	return fmt.Sprintf("there was a failure retrieving the capabilities document for %q (%s): %s exception: %v",
		name, d.ServiceAddress, text, exception)
}

func split(err error) (string, error) {
	var transportErr *wms.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Text, transportErr.Err
	}

	var parseErr *wms.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Text, parseErr.Err
	}

	return "error", err
}
