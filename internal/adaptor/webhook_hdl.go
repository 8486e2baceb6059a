package adaptor

import (
	"errors"
	"io"
	"net/http"

	"mahjong-booking/internal/usecase"
	"mahjong-booking/pkg/utils"

	"go.uber.org/zap"
)

const (
	signatureHeader        = "Stripe-Signature"
	defaultMaxWebhookBytes = 64 << 10
)

type WebhookHandler struct {
	service  usecase.WebhookService
	maxBytes int64
	log      *zap.Logger
}

func NewWebhookHandler(service usecase.WebhookService, maxKBytes int64, log *zap.Logger) *WebhookHandler {
	maxBytes := maxKBytes << 10
	if maxBytes <= 0 {
		maxBytes = defaultMaxWebhookBytes
	}
	return &WebhookHandler{
		service:  service,
		maxBytes: maxBytes,
		log:      log.With(zap.String("handler", "webhook")),
	}
}

// HandleStripe handles POST /api/webhook. The body must be read raw: the
// signature covers the exact bytes the gateway sent.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.Warn("Webhook body too large", zap.Int64("limit", tooLarge.Limit))
			utils.ResponseJSON(w, http.StatusRequestEntityTooLarge, false, "Payload too large", nil, nil)
			return
		}
		utils.ResponseBadRequest(w, "Failed to read request body", nil)
		return
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		h.log.Warn("Webhook without signature header")
		utils.ResponseBadRequest(w, "Missing "+signatureHeader+" header", nil)
		return
	}

	result, err := h.service.HandleEvent(r.Context(), payload, signature)
	if err != nil {
		utils.ResponseError(w, err)
		return
	}

	h.log.Debug("Webhook handled",
		zap.String("event_id", result.EventID),
		zap.String("kind", string(result.Kind)),
		zap.String("outcome", result.Outcome),
	)
	utils.ResponseJSON(w, http.StatusOK, true, "received", map[string]any{"received": true}, nil)
}
