// Package chat serves the inference endpoints: streaming text and
// retrieval-augmented chat, image generation, document upload and the
// explicit stop action, over HTTP and WebSocket.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/HerbHall/parley/internal/auth"
	"github.com/HerbHall/parley/internal/history"
	"github.com/HerbHall/parley/internal/imagegen"
	"github.com/HerbHall/parley/internal/ingest"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/protect"
	"github.com/HerbHall/parley/internal/stream"
	"github.com/HerbHall/parley/internal/validate"
	"github.com/HerbHall/parley/internal/ws"
	"github.com/HerbHall/parley/pkg/llm"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Retriever returns document context for a question. Defined here
// (consumer-side) so tests can substitute a fake.
type Retriever interface {
	Context(ctx context.Context, collection, question string) (string, error)
}

// ImageGenerator produces an image URL for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (imagegen.Image, error)
}

// Recorder persists finished exchanges and uploaded documents.
type Recorder interface {
	Submit(ex persist.Exchange)
	RecordDocument(ctx context.Context, doc persist.Document) bool
}

// Limits are the input bounds applied before any model call.
type Limits struct {
	MaxLength      int
	ImageMaxLength int
	Allowed        *regexp.Regexp
	History        history.Limits
	Upload         validate.UploadOptions
}

// DefaultLimits returns the built-in bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxLength:      validate.DefaultMaxLength,
		ImageMaxLength: validate.DefaultImageMaxLength,
		Allowed:        validate.DefaultAllowed,
		History:        history.DefaultLimits,
		Upload:         validate.UploadOptions{MaxBytes: validate.DefaultMaxUploadBytes},
	}
}

// Policies are the rate-limit budgets per endpoint family.
type Policies struct {
	Default protect.Policy
	Upload  protect.Policy
}

// Deps are the collaborators of the handler. Retriever, Images, Recorder,
// Spool and Queue are optional; the endpoints that need a missing one
// answer 503.
type Deps struct {
	Gate      *protect.Gate
	Relay     *stream.Relay
	Registry  *stream.Registry
	Provider  llm.Provider
	Retriever Retriever
	Images    ImageGenerator
	Recorder  Recorder
	Spool     *ingest.Spool
	Queue     ingest.Queue
	Hub       *ws.Hub
	Limits    Limits
	Policies  Policies
}

// Handler serves the chat API.
type Handler struct {
	Deps
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a handler, filling unset limits and policies with the
// defaults.
func NewHandler(d Deps, logger *zap.Logger) *Handler {
	def := DefaultLimits()
	if d.Limits.MaxLength <= 0 {
		d.Limits.MaxLength = def.MaxLength
	}
	if d.Limits.ImageMaxLength <= 0 {
		d.Limits.ImageMaxLength = def.ImageMaxLength
	}
	if d.Limits.Allowed == nil {
		d.Limits.Allowed = def.Allowed
	}
	if d.Limits.History == (history.Limits{}) {
		d.Limits.History = def.History
	}
	if d.Limits.Upload.MaxBytes <= 0 {
		d.Limits.Upload.MaxBytes = def.Upload.MaxBytes
	}
	if d.Policies.Default.Limit <= 0 {
		d.Policies.Default = protect.DefaultPolicy
	}
	if d.Policies.Upload.Limit <= 0 {
		d.Policies.Upload = protect.UploadPolicy
	}
	if d.Hub == nil {
		d.Hub = ws.NewHub(logger)
	}
	return &Handler{Deps: d, logger: logger}
}

// RegisterRoutes registers the chat routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
	mux.HandleFunc("POST /api/v1/rag", h.handleRAG)
	mux.HandleFunc("POST /api/v1/image", h.handleImage)
	mux.HandleFunc("POST /api/v1/upload", h.handleUpload)
	mux.HandleFunc("POST /api/v1/streams/{id}/stop", h.handleStop)
	mux.HandleFunc("GET /api/v1/ws/chat", h.handleWSChat)
}

// chatRequest is the body of the streaming chat endpoints.
type chatRequest struct {
	Question            string         `json:"question"`
	ConversationHistory []history.Turn `json:"conversationHistory"`
	FileName            string         `json:"fileName"`
	CollectionName      string         `json:"collectionName"`
	ConversationID      string         `json:"conversationId"`
	IsRAG               bool           `json:"isRag"`
	IsImage             bool           `json:"isImage"`
}

// errorResponse is the body of server errors raised before a stream starts.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// decode reads a JSON body into v. A malformed body is a validation
// failure, reported by the caller.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// userID returns the authenticated caller, or "".
func userID(r *http.Request) string {
	return auth.UserID(r.Context())
}

// submit hands a finished exchange to the recorder, if there is one.
func (h *Handler) submit(ex persist.Exchange) {
	if h.Recorder != nil {
		h.Recorder.Submit(ex)
	}
}
