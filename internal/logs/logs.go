package logs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/delta10/globe-layers/internal/config"
	"github.com/delta10/globe-layers/internal/remote"
)

func NewLogBackend(backend config.LogBackend) *LogBackend {
	return &LogBackend{
		Config: backend,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// LogBackend pushes log lines to a Loki compatible push API.
type LogBackend struct {
	Config config.LogBackend
	Client *http.Client
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]any           `json:"values"`
}

type Body struct {
	Streams []Stream `json:"streams"`
}

func (l *LogBackend) WriteLog(labels map[string]string, line map[string]string) error {
	parsedUrl, err := url.Parse(l.Config.BaseURL)
	if err != nil {
		return err
	}

	parsedUrl = parsedUrl.JoinPath("/api/v1/push")

	marshalledLine, err := json.Marshal(line)
	if err != nil {
		return err
	}

	streamLabels := map[string]string{}
	for k, v := range l.Config.Labels {
		streamLabels[k] = v
	}
	for k, v := range labels {
		streamLabels[k] = v
	}

	body := Body{
		Streams: []Stream{
			{
				Stream: streamLabels,
				Values: [][]any{
					{
						fmt.Sprint(time.Now().UnixNano()),
						string(marshalledLine),
					},
				},
			},
		},
	}

	marshalled, err := json.Marshal(body)
	if err != nil {
		return err
	}

	logRequest, err := http.NewRequest(http.MethodPost, parsedUrl.String(), bytes.NewReader(marshalled))
	if err != nil {
		return err
	}

	logRequest.Header.Add("Content-Type", "application/json")

	logResponse, err := l.Client.Do(logRequest)
	if err != nil {
		return err
	}

	defer logResponse.Body.Close()

	if logResponse.StatusCode != http.StatusNoContent {
		return errors.New("could not create log entry")
	}

	return nil
}

// Reporter logs the failure of a remote layer and, when a log backend is
// configured, ships it there as well.
type Reporter struct {
	Backend *LogBackend
}

func NewReporter(backend config.LogBackend) *Reporter {
	if backend.BaseURL == "" {
		return &Reporter{}
	}
	return &Reporter{Backend: NewLogBackend(backend)}
}

func (r *Reporter) Report(d remote.Descriptor, err error) {
	message := remote.Diagnostic(d, err)
	log.Print(message)

	if r.Backend == nil {
		return
	}

	labels := map[string]string{
		"level": "error",
		"layer": d.LayerIdentifier,
	}
	line := map[string]string{
		"message":         message,
		"serviceAddress":  d.ServiceAddress,
		"layerIdentifier": d.LayerIdentifier,
		"displayName":     d.DisplayName,
		"error":           err.Error(),
	}

	if writeErr := r.Backend.WriteLog(labels, line); writeErr != nil {
		log.Printf("could not write log entry: %s", writeErr)
	}
}
