package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/delta10/globe-layers/internal/utils"
)

type Layer struct {
	// Name is the slug the layer is addressed by in the API.
	Name            string            `yaml:"name"`
	DisplayName     string            `yaml:"displayName"`
	ServiceAddress  string            `yaml:"serviceAddress"`
	LayerIdentifier string            `yaml:"layerIdentifier"`
	Headers         map[string]string `yaml:"headers"`
	Disabled        bool              `yaml:"disabled"`
}

type LogBackend struct {
	BaseURL string            `yaml:"baseUrl"`
	Labels  map[string]string `yaml:"labels"`
}

type Config struct {
	ListenAddress string `yaml:"listenAddress"`
	ListenTLS     struct {
		Certificate string `yaml:"certificate"`
		Key         string `yaml:"key"`
	} `yaml:"listenTls"`
	JwksURL             string        `yaml:"jwksUrl"`
	AllowedGroups       []string      `yaml:"allowedGroups"`
	CapabilitiesTimeout time.Duration `yaml:"capabilitiesTimeout"`
	Filter              string        `yaml:"filter"`
	LogBackend          LogBackend    `yaml:"logBackend"`
	Layers              []Layer       `yaml:"layers"`
}

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	// Create config structure
	config := &Config{}

	// Open config file
	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Init new YAML decode
	d := yaml.NewDecoder(file)

	// Start YAML decoding from file
	if err := d.Decode(&config); err != nil {
		return nil, err
	}

	config.expand()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) expand() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}

	c.LogBackend.BaseURL = utils.EnvSubst(c.LogBackend.BaseURL)

	for i := range c.Layers {
		layer := &c.Layers[i]
		layer.ServiceAddress = utils.EnvSubst(layer.ServiceAddress)
		for key, value := range layer.Headers {
			layer.Headers[key] = utils.EnvSubst(value)
		}
	}
}

// validate only checks what the API needs to route requests. Service
// addresses and identifiers are not validated; a bad value shows up as a
// failed capabilities fetch.
func (c *Config) validate() error {
	seen := map[string]bool{}
	for i, layer := range c.Layers {
		if layer.Name == "" {
			return fmt.Errorf("layer %d has no name", i)
		}
		if seen[layer.Name] {
			return fmt.Errorf("duplicate layer name: %s", layer.Name)
		}
		seen[layer.Name] = true
	}
	return nil
}
