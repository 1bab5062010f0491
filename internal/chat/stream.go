package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/HerbHall/parley/internal/history"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/protect"
	"github.com/HerbHall/parley/internal/stream"
	"github.com/HerbHall/parley/internal/validate"
	"github.com/HerbHall/parley/pkg/llm"
	"go.uber.org/zap"
)

// plan is a validated chat request ready to stream.
type plan struct {
	kind     persist.Kind
	req      chatRequest
	userID   string
	messages []llm.Message
}

// failure is a terminal error found while preparing a plan. Exactly one of
// details (validation) or status (server side) is set.
type failure struct {
	details []string
	status  int
	msg     string
	cause   string
}

func invalid(details ...string) *failure {
	return &failure{details: details}
}

// write sends the failure as the HTTP response.
func (f *failure) write(w http.ResponseWriter, g *protect.Gate) {
	if f.details != nil {
		g.Invalid(w, f.details)
		return
	}
	writeError(w, f.status, f.msg, f.cause)
}

// prepare checks req and builds the model messages: validation, history
// truncation and, for document questions, retrieval.
func (h *Handler) prepare(ctx context.Context, kind persist.Kind, req chatRequest, userID string) (plan, *failure) {
	if kind == persist.KindRAG && userID == "" {
		return plan{}, &failure{status: http.StatusUnauthorized, msg: "Unauthorized"}
	}

	res := validate.Input(validate.Options{
		Question:  req.Question,
		History:   req.ConversationHistory,
		MaxLength: h.Limits.MaxLength,
		Allowed:   h.Limits.Allowed,
	})
	errs := res.Errors
	if kind == persist.KindRAG && req.CollectionName == "" {
		errs = append(errs, "Collection name is required")
	}
	if len(errs) > 0 {
		return plan{}, invalid(errs...)
	}

	prompt := req.Question
	switch kind {
	case persist.KindRAG:
		if h.Retriever == nil {
			return plan{}, &failure{status: http.StatusServiceUnavailable, msg: "Retrieval is not configured"}
		}
		docs, err := h.Retriever.Context(ctx, req.CollectionName, req.Question)
		if err != nil {
			h.logger.Error("retrieval failed",
				zap.String("collection", req.CollectionName),
				zap.Error(err),
			)
			return plan{}, &failure{status: http.StatusInternalServerError, msg: "Failed to retrieve context", cause: err.Error()}
		}
		prompt = ragQuestion(docs, req.Question)
	default:
		if req.CollectionName != "" && h.Retriever != nil {
			docs, err := h.Retriever.Context(ctx, req.CollectionName, req.Question)
			if err != nil {
				h.logger.Warn("document context unavailable, answering without it",
					zap.String("collection", req.CollectionName),
					zap.Error(err),
				)
			}
			prompt = withDocument(docs, req.Question)
		}
	}

	turns := history.Truncate(req.ConversationHistory, h.Limits.History)
	return plan{
		kind:     kind,
		req:      req,
		userID:   userID,
		messages: history.ToMessages(turns, prompt),
	}, nil
}

// relay streams the model's answer for p into sink. The exchange is
// recorded only when the stream completes.
func (h *Handler) relay(ctx context.Context, id, owner string, sink stream.Sink, p plan) stream.Result {
	return h.Relay.Run(ctx, stream.Session{
		ID:     id,
		Owner:  owner,
		Source: stream.FromProvider(h.Provider, p.messages),
		Sink:   sink,
		OnComplete: func(res stream.Result) {
			h.submit(persist.Exchange{
				Kind:           p.kind,
				Prompt:         p.req.Question,
				Response:       res.Text,
				UserID:         p.userID,
				ConversationID: p.req.ConversationID,
				CollectionName: p.req.CollectionName,
				FileName:       p.req.FileName,
			})
		},
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	h.serveStream(w, r, persist.KindText)
}

func (h *Handler) handleRAG(w http.ResponseWriter, r *http.Request) {
	h.serveStream(w, r, persist.KindRAG)
}

// serveStream runs the pipeline for the HTTP streaming endpoints. Once the
// sink is created the status is committed and errors travel in-band.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, kind persist.Kind) {
	if !h.Gate.Protect(w, r, h.Policies.Default) {
		return
	}

	var req chatRequest
	if !decode(w, r, &req) {
		h.Gate.Invalid(w, []string{"Request body must be valid JSON"})
		return
	}

	p, f := h.prepare(r.Context(), kind, req, userID(r))
	if f != nil {
		f.write(w, h.Gate)
		return
	}

	id := stream.NewID()
	sink := stream.NewHTTPSink(w, id, "")
	h.relay(r.Context(), id, h.Gate.IdentityOf(r), sink, p)
}

// handleStop cancels an in-flight stream started by the same caller.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.Registry.Stop(id, h.Gate.IdentityOf(r))
	switch {
	case errors.Is(err, stream.ErrUnknownStream):
		writeError(w, http.StatusNotFound, "Stream not found", "")
	case errors.Is(err, stream.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Access denied"})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to stop stream", err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "streamId": id})
	}
}
