// Package imagegen produces image URLs from text prompts using a
// pollinations-compatible rendering service.
package imagegen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds the image service configuration.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Width   int           `mapstructure:"width"`
	Height  int           `mapstructure:"height"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the public pollinations endpoint at 512x512.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://image.pollinations.ai",
		Width:   512,
		Height:  512,
		Timeout: 60 * time.Second,
	}
}

// Image is a rendered image reference.
type Image struct {
	URL  string `json:"url"`
	Seed int    `json:"seed"`
}

// Generator renders prompts to image URLs.
type Generator struct {
	cfg        Config
	httpClient *http.Client
	seed       func() int
	logger     *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed overrides the seed source.
func WithSeed(fn func() int) Option {
	return func(g *Generator) { g.seed = fn }
}

// New creates a generator.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Generator {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	g := &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		seed:       func() int { return rand.IntN(100_000_000) + 1 },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// URL builds the image URL for prompt and seed without fetching it.
func (g *Generator) URL(prompt string, seed int) string {
	q := url.Values{}
	q.Set("seed", strconv.Itoa(seed))
	q.Set("width", strconv.Itoa(g.cfg.Width))
	q.Set("height", strconv.Itoa(g.cfg.Height))
	q.Set("nologo", "True")
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

// Generate builds the URL for prompt and fetches it once so the image is
// rendered and cached before the client loads it.
func (g *Generator) Generate(ctx context.Context, prompt string) (Image, error) {
	img := Image{Seed: g.seed()}
	img.URL = g.URL(prompt, img.Seed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, http.NoBody)
	if err != nil {
		return Image{}, fmt.Errorf("build image request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch image: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Image{}, fmt.Errorf("failed to generate image: %s", resp.Status)
	}

	g.logger.Debug("image generated", zap.Int("seed", img.Seed))
	return img, nil
}
