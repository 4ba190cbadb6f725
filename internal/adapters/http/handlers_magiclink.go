package http

import (
	"net/http"

	"github.com/bubblehq/bubble-backend/internal/application"
)

func (h *Handler) magicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var req application.MagicLinkRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "magic_link_request", err)
		return
	}
	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	if err := h.service.RequestMagicLink(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "magic_link_request", err)
		return
	}
	// Same response for known and unknown emails.
	writeMessage(w, http.StatusOK, "if the account exists, a sign-in link has been sent")
}

func (h *Handler) magicLinkVerify(w http.ResponseWriter, r *http.Request) {
	var req application.MagicLinkVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "magic_link_verify", err)
		return
	}
	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.service.VerifyMagicLink(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "magic_link_verify", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
