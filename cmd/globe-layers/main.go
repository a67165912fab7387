package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/delta10/globe-layers/internal/api"
	"github.com/delta10/globe-layers/internal/config"
	"github.com/delta10/globe-layers/internal/globe"
	"github.com/delta10/globe-layers/internal/logs"
	"github.com/delta10/globe-layers/internal/remote"
	"github.com/delta10/globe-layers/internal/wms"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "globe-layers",
		Short:        "Serve remote WMS layers to a virtual globe",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newInspectCommand())

	return root
}

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the configured layers and serve them over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := config.NewConfig(configPath)
			if err != nil {
				return err
			}

			scene, entries := buildLayers(config, logs.NewReporter(config.LogBackend))

			options := api.Options{
				Filter:        config.Filter,
				AllowedGroups: config.AllowedGroups,
			}

			if config.JwksURL != "" {
				jwks, err := api.NewJWKS(config.JwksURL)
				if err != nil {
					return fmt.Errorf("could not retrieve JWKS: %w", err)
				}
				defer jwks.EndBackground()
				options.Keyfunc = jwks.Keyfunc
			}

			server, err := api.NewServer(scene, entries, options)
			if err != nil {
				return err
			}

			s := &http.Server{
				Addr:           config.ListenAddress,
				Handler:        server.Router(),
				ReadTimeout:    10 * time.Second,
				WriteTimeout:   10 * time.Second,
				MaxHeaderBytes: 1 << 20,
			}

			log.Printf("serving %d layers on %s", len(entries), config.ListenAddress)

			if config.ListenTLS.Certificate != "" && config.ListenTLS.Key != "" {
				return s.ListenAndServeTLS(config.ListenTLS.Certificate, config.ListenTLS.Key)
			}
			return s.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	return cmd
}

func newInspectCommand() *cobra.Command {
	var address string
	var layerName string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Fetch a capabilities document and print the configuration of a layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			caps, err := wms.NewFetcher(timeout).Fetch(ctx, address)
			if err != nil {
				return err
			}

			if layerName == "" {
				return printJSON(caps.NamedLayers())
			}

			layerConfig, err := wms.ResolveLayer(caps, layerName)
			if err != nil {
				return err
			}
			return printJSON(layerConfig)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "WMS service address")
	cmd.Flags().StringVar(&layerName, "layer", "", "Named layer; lists all named layers when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", wms.DefaultTimeout, "Capabilities request timeout")
	// Only fails for an undefined flag.
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

// buildLayers starts loading every configured layer and adds it to a new
// scene. Disabled layers are loaded but not drawn.
func buildLayers(config *config.Config, reporter remote.Reporter) (*globe.LayerList, []api.Entry) {
	scene := globe.NewLayerList()
	entries := make([]api.Entry, 0, len(config.Layers))

	for _, layerConfig := range config.Layers {
		fetcher := wms.NewFetcher(config.CapabilitiesTimeout)
		if len(layerConfig.Headers) > 0 {
			fetcher.Header = http.Header{}
			for key, value := range layerConfig.Headers {
				fetcher.Header.Set(key, value)
			}
		}

		layer := remote.New(remote.Descriptor{
			ServiceAddress:  layerConfig.ServiceAddress,
			LayerIdentifier: layerConfig.LayerIdentifier,
			DisplayName:     layerConfig.DisplayName,
		}, remote.WithFetcher(fetcher), remote.WithReporter(reporter))

		scene.Add(layer)
		if layerConfig.Disabled {
			scene.SetEnabled(layer, false)
		}

		entries = append(entries, api.Entry{Name: layerConfig.Name, Layer: layer})
	}

	return scene, entries
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
