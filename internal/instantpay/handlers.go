package instantpay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/efabox/instapay-api/internal/common"
)

type Handler struct {
	Svc *Service
}

func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "instant payment service not configured", nil)
		return
	}
	var payload InitInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return
	}
	out, err := h.Svc.Init(r.Context(), payload, r.UserAgent())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "instant payment service not configured", nil)
		return
	}
	var payload SubscribeInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return
	}
	out, err := h.Svc.Confirm(r.Context(), payload)
	if err != nil {
		h.writeError(w, err, out.CommunicationLog)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, communicationLog []string) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = common.CodeInternal
		}
		details := appErr.Details
		if details == nil && len(communicationLog) > 0 {
			details = map[string]any{"communicationLog": communicationLog}
		}
		common.JSONError(w, status, code, appErr.Message, details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, err.Error(), nil)
}
