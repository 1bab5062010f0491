package rag

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"http://localhost:6334", "localhost", 6334, false, false},
		{"https://xyz.cloud.qdrant.io", "xyz.cloud.qdrant.io", 6334, true, false},
		{"qdrant.internal:7000", "qdrant.internal", 7000, true, false},
		{"http://localhost:notaport", "", 0, false, true},
		{"", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, tls, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if host != tt.wantHost || port != tt.wantPort || tls != tt.wantTLS {
				t.Errorf("got (%s, %d, %v), want (%s, %d, %v)", host, port, tls, tt.wantHost, tt.wantPort, tt.wantTLS)
			}
		})
	}
}

func TestToChunks(t *testing.T) {
	points := []*qdrant.ScoredPoint{
		{
			Id:      qdrant.NewIDUUID("6f1b0c1e-0000-4000-8000-000000000001"),
			Score:   0.91,
			Payload: map[string]*qdrant.Value{ContentKey: qdrant.NewValueString("alpha"), "page": qdrant.NewValueInt(3)},
		},
		{
			Id:    qdrant.NewIDNum(42),
			Score: 0.5,
		},
	}

	chunks := toChunks(points)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if chunks[0].Content != "alpha" || chunks[0].ID != "6f1b0c1e-0000-4000-8000-000000000001" {
		t.Errorf("chunks[0] = %+v", chunks[0])
	}
	if chunks[1].ID != "42" || chunks[1].Content != "" {
		t.Errorf("chunks[1] = %+v", chunks[1])
	}
}
