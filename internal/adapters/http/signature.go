package http

import (
	"bytes"
	"io"
	"net/http"

	"github.com/bubblehq/bubble-backend/internal/application"
	"github.com/bubblehq/bubble-backend/internal/signing"
)

// Signed-request headers. Names follow the client SDK contract.
const (
	headerAPIKey    = "x-api-key"
	headerTimestamp = "x-timestamp"
	headerNonce     = "x-nonce"
	headerSignature = "x-signature"
	headerFileSHA   = "x-file-sha256"

	maxSignedBodyBytes = 10 << 20
)

// authenticateMiddleware runs the authentication facade on every request.
// The facade classifies the route itself, so one middleware covers public,
// signed, and bearer routes uniformly; handlers read the established
// identities from context.
func (h *Handler) authenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readAndRestoreBody(r)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds signing limit")
			return
		}

		bearer := ""
		if token, tErr := bearerTokenFromHeader(r.Header.Get("Authorization")); tErr == nil {
			bearer = token
		}

		req := application.AuthRequest{
			Signed: application.SignedRequestInput{
				Request: signing.Request{
					Method:        r.Method,
					PathAndQuery:  r.URL.RequestURI(),
					KeyID:         r.Header.Get(headerAPIKey),
					Timestamp:     r.Header.Get(headerTimestamp),
					Nonce:         r.Header.Get(headerNonce),
					ContentType:   r.Header.Get("Content-Type"),
					Body:          body,
					ContentSHA256: r.Header.Get(headerFileSHA),
				},
				Signature: r.Header.Get(headerSignature),
				ClientIP:  readIP(r),
			},
			BearerToken: bearer,
		}

		result, err := h.service.Authenticate(r.Context(), req)
		if err != nil {
			writeMappedError(r.Context(), w, "authenticate", err)
			return
		}

		ctx := r.Context()
		if result.Claims != nil {
			ctx = contextWithClaims(ctx, *result.Claims)
		}
		if result.APIKey != nil {
			ctx = contextWithAPIKey(ctx, *result.APIKey)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// readAndRestoreBody drains the body for canonicalization and puts an
// identical reader back so handlers can decode it again.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes+1))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	if len(body) > maxSignedBodyBytes {
		return nil, io.ErrShortBuffer
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
