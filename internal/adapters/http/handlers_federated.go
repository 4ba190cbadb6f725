package http

import (
	"net/http"

	"github.com/bubblehq/bubble-backend/internal/application"
)

func (h *Handler) federatedLogin(w http.ResponseWriter, r *http.Request) {
	var req application.FederatedLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "federated_login", err)
		return
	}
	if req.Provider == "" {
		req.Provider = pathParam(r, "provider")
	}
	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.service.FederatedLogin(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "federated_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
