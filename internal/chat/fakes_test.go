package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/parley/internal/auth"
	"github.com/HerbHall/parley/internal/imagegen"
	"github.com/HerbHall/parley/internal/ingest"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/protect"
	"github.com/HerbHall/parley/internal/stream"
	"github.com/HerbHall/parley/pkg/llm"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// fakeProvider streams parts, then fails with err if set. With hold set it
// blocks after the first part until the context ends.
type fakeProvider struct {
	parts []string
	err   error
	hold  bool

	mu       sync.Mutex
	messages [][]llm.Message
}

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	p.mu.Lock()
	p.messages = append(p.messages, messages)
	p.mu.Unlock()

	cfg := llm.ApplyOptions(opts...)
	var b strings.Builder
	for i, part := range p.parts {
		if err := cfg.StreamFunc(ctx, []byte(part)); err != nil {
			return nil, err
		}
		b.WriteString(part)
		if p.hold && i == 0 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: b.String(), Done: true}, nil
}

func (p *fakeProvider) calls() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages
}

type fakeRetriever struct {
	context string
	err     error

	mu          sync.Mutex
	collections []string
}

func (f *fakeRetriever) Context(_ context.Context, collection, _ string) (string, error) {
	f.mu.Lock()
	f.collections = append(f.collections, collection)
	f.mu.Unlock()
	return f.context, f.err
}

type fakeImages struct {
	err error
}

func (f *fakeImages) Generate(_ context.Context, prompt string) (imagegen.Image, error) {
	if f.err != nil {
		return imagegen.Image{}, f.err
	}
	return imagegen.Image{URL: "https://img.test/prompt/" + prompt, Seed: 7}, nil
}

// fakeRecorder stores submissions synchronously.
type fakeRecorder struct {
	mu        sync.Mutex
	exchanges []persist.Exchange
	documents []persist.Document
}

func (f *fakeRecorder) Submit(ex persist.Exchange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
}

func (f *fakeRecorder) RecordDocument(_ context.Context, doc persist.Document) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, doc)
	return true
}

func (f *fakeRecorder) saved() []persist.Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]persist.Exchange(nil), f.exchanges...)
}

type fakeQueue struct {
	err error

	mu   sync.Mutex
	jobs []ingest.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job ingest.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

var errUpstream = &llm.ProviderError{Code: llm.ErrCodeServerError, Message: "upstream exploded", Err: errors.New("boom")}

type testEnv struct {
	handler  *Handler
	mux      *http.ServeMux
	provider *fakeProvider
	recorder *fakeRecorder
	registry *stream.Registry
}

// newTestEnv wires a handler around p with an in-memory limiter. Callers
// adjust d before the handler is built.
func newTestEnv(t *testing.T, p *fakeProvider, configure func(d *Deps)) *testEnv {
	t.Helper()
	limiter, err := protect.NewMemoryLimiter(protect.DefaultCapacity)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	logger := zap.NewNop()
	registry := stream.NewRegistry()
	recorder := &fakeRecorder{}
	d := Deps{
		Gate:     protect.NewGate(protect.NewFilter("1.2.3.4"), limiter, auth.UserID, logger),
		Relay:    stream.NewRelay(registry, 5*time.Second, logger),
		Registry: registry,
		Provider: p,
		Recorder: recorder,
	}
	if configure != nil {
		configure(&d)
	}
	h := NewHandler(d, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testEnv{handler: h, mux: mux, provider: p, recorder: recorder, registry: registry}
}

// asUser marks requests as authenticated, as the auth middleware would.
func asUser(next http.Handler, id string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}
