package rag

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// ContentKey is the payload field holding a chunk's text.
const ContentKey = "content"

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the gRPC endpoint, e.g. "https://example.qdrant.io:6334".
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// QdrantSearcher implements Searcher over the Qdrant gRPC API. Each uploaded
// document lives in its own collection.
type QdrantSearcher struct {
	client *qdrant.Client
}

// NewQdrantSearcher connects to Qdrant.
func NewQdrantSearcher(cfg QdrantConfig) (*QdrantSearcher, error) {
	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantSearcher{client: client}, nil
}

// Search implements Searcher.
func (s *QdrantSearcher) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Chunk, error) {
	n := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	return toChunks(points), nil
}

// Ping checks that Qdrant answers health checks.
func (s *QdrantSearcher) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	return err
}

// Close releases the gRPC connection.
func (s *QdrantSearcher) Close() error {
	return s.client.Close()
}

func toChunks(points []*qdrant.ScoredPoint) []Chunk {
	chunks := make([]Chunk, 0, len(points))
	for _, p := range points {
		c := Chunk{Score: p.GetScore()}
		if id := p.GetId(); id != nil {
			if u := id.GetUuid(); u != "" {
				c.ID = u
			} else {
				c.ID = strconv.FormatUint(id.GetNum(), 10)
			}
		}
		if v, ok := p.GetPayload()[ContentKey]; ok {
			c.Content = v.GetStringValue()
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// parseEndpoint splits a Qdrant URL into host, port and TLS flag. A URL
// without a scheme is treated as https; the default port is 6334.
func parseEndpoint(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, fmt.Errorf("qdrant url is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port = 6334
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}
