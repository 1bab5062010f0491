package chat

import (
	"net/http"

	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/validate"
	"go.uber.org/zap"
)

type imageRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId"`
}

type imageResponse struct {
	URL string `json:"url"`
}

// handleImage generates an image for a prompt and returns its URL.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	if !h.Gate.Protect(w, r, h.Policies.Default) {
		return
	}

	var req imageRequest
	if !decode(w, r, &req) {
		h.Gate.Invalid(w, []string{"Request body must be valid JSON"})
		return
	}
	res := validate.Input(validate.Options{
		Question:  req.Prompt,
		MaxLength: h.Limits.ImageMaxLength,
		Allowed:   h.Limits.Allowed,
	})
	if !res.Valid {
		h.Gate.Invalid(w, res.Errors)
		return
	}

	if h.Images == nil {
		writeError(w, http.StatusServiceUnavailable, "Image generation is not configured", "")
		return
	}
	img, err := h.Images.Generate(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("image generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate image", err.Error())
		return
	}

	h.submit(persist.Exchange{
		Kind:           persist.KindImage,
		Prompt:         req.Prompt,
		Response:       img.URL,
		UserID:         userID(r),
		ConversationID: req.ConversationID,
	})
	writeJSON(w, http.StatusOK, imageResponse{URL: img.URL})
}
