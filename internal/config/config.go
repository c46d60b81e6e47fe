// Package config holds the run inputs: which post, where to, and how fast.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/blacktop/rxpost/internal/llm"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPaceMinSeconds = 100
	DefaultPaceMaxSeconds = 150
)

// Config describes one cross-posting run. Credentials never live here; they
// are read from the environment by each client.
type Config struct {
	PostID       string    `yaml:"post_id"`
	Destinations []string  `yaml:"destinations"`
	Pacing       Pacing    `yaml:"pacing"`
	Generator    Generator `yaml:"generator"`
	TextFallback bool      `yaml:"text_fallback"`
	ImageDir     string    `yaml:"image_dir"`
}

// Pacing is the window, in seconds, that delays between submissions are drawn from.
type Pacing struct {
	MinSeconds int `yaml:"min_seconds"`
	MaxSeconds int `yaml:"max_seconds"`
}

// Min returns the lower bound as a duration.
func (p Pacing) Min() time.Duration { return time.Duration(p.MinSeconds) * time.Second }

// Max returns the upper bound as a duration.
func (p Pacing) Max() time.Duration { return time.Duration(p.MaxSeconds) * time.Second }

// Generator selects the text-generation backend.
type Generator struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Pacing: Pacing{
			MinSeconds: DefaultPaceMinSeconds,
			MaxSeconds: DefaultPaceMaxSeconds,
		},
		Generator: Generator{Provider: llm.ProviderOpenAI},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.PostID = strings.TrimSpace(c.PostID)
	c.Generator.Provider = strings.ToLower(strings.TrimSpace(c.Generator.Provider))
	var dests []string
	for _, d := range c.Destinations {
		if d = strings.TrimSpace(d); d != "" {
			dests = append(dests, d)
		}
	}
	c.Destinations = dests
}

// Validate reports every problem with the run inputs at once. Destination
// names are not checked here: a bad name fails only its own submission.
func (c Config) Validate() error {
	var errs []error
	if c.PostID == "" {
		errs = append(errs, errors.New("post id is required"))
	}
	if c.Pacing.MinSeconds < 0 {
		errs = append(errs, fmt.Errorf("pacing min_seconds must not be negative, got %d", c.Pacing.MinSeconds))
	}
	if c.Pacing.MaxSeconds < c.Pacing.MinSeconds {
		errs = append(errs, fmt.Errorf("pacing max_seconds (%d) must be at least min_seconds (%d)", c.Pacing.MaxSeconds, c.Pacing.MinSeconds))
	}
	if p := c.Generator.Provider; p != "" && !slices.Contains(llm.Providers(), p) {
		errs = append(errs, fmt.Errorf("unsupported generator provider %q", p))
	}
	return errors.Join(errs...)
}
