package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/signing"
)

// Audit reason codes written to the signature audit trail. They double as the
// machine-readable codes returned to callers.
const (
	reasonMissing       = "HMAC_MISSING"
	reasonTimestamp     = "HMAC_TIMESTAMP"
	reasonAPIKeyInvalid = "HMAC_APIKEY_INVALID"
	reasonReplay        = "HMAC_REPLAY"
	reasonMismatch      = "HMAC_MISMATCH"
	reasonInternal      = "HMAC_ERROR"
)

// Authenticate is the single entry point for inbound request authentication.
// It classifies the route, then runs only the checks that class requires.
// Public routes short-circuit before any store is touched.
func (s *Service) Authenticate(ctx context.Context, req AuthRequest) (AuthResult, error) {
	path := req.Signed.Request.PathAndQuery
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	result := AuthResult{Class: s.routes.Classify(req.Signed.Request.Method, path)}
	if result.Class == RoutePublic {
		return result, nil
	}

	if result.Class == RouteSigned || result.Class == RouteSignedAndBearer {
		key, err := s.VerifySignedRequest(ctx, req.Signed)
		if err != nil {
			return result, err
		}
		result.APIKey = &key
	}

	if result.Class == RouteBearer || result.Class == RouteSignedAndBearer {
		claims, err := s.ValidateToken(ctx, req.BearerToken)
		if err != nil {
			return result, err
		}
		result.Claims = &claims
	}
	return result, nil
}

// VerifySignedRequest runs the full signature check: header presence,
// timestamp freshness, key lookup, atomic replay marking, canonicalization
// and constant-time comparison, in that order. Every outcome is audited.
// Infrastructure failures map to ErrSignatureInternal: the verifier fails
// closed, never open.
func (s *Service) VerifySignedRequest(ctx context.Context, in SignedRequestInput) (domain.APIKey, error) {
	req := in.Request

	if strings.TrimSpace(req.KeyID) == "" ||
		strings.TrimSpace(req.Timestamp) == "" ||
		strings.TrimSpace(req.Nonce) == "" ||
		strings.TrimSpace(in.Signature) == "" {
		s.auditSignature(ctx, nil, in, false, reasonMissing)
		return domain.APIKey{}, domain.ErrSignatureHeaderMissing
	}

	ts, err := signing.ParseTimestamp(req.Timestamp)
	if err != nil {
		s.auditSignature(ctx, nil, in, false, reasonTimestamp)
		return domain.APIKey{}, domain.ErrSignatureTimestamp
	}
	now := s.nowFn()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > s.cfg.SignatureWindow {
		s.auditSignature(ctx, nil, in, false, reasonTimestamp)
		return domain.APIKey{}, domain.ErrSignatureTimestamp
	}

	key, err := s.apiKeys.GetByKeyID(ctx, strings.TrimSpace(req.KeyID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.auditSignature(ctx, nil, in, false, reasonAPIKeyInvalid)
			return domain.APIKey{}, domain.ErrAPIKeyUnknown
		}
		s.logVerifierFailure(ctx, "api_key_lookup", err)
		s.auditSignature(ctx, nil, in, false, reasonInternal)
		return domain.APIKey{}, domain.ErrSignatureInternal
	}
	if key.Disabled {
		s.auditSignature(ctx, &key.ID, in, false, reasonAPIKeyInvalid)
		return domain.APIKey{}, domain.ErrAPIKeyDisabled
	}

	// Mark the nonce before verifying the signature. A request that fails
	// verification still burns its nonce, which is harmless; a request that
	// passes must never be replayable.
	fresh, err := s.replay.CheckAndMark(ctx, key.KeyID, req.Nonce, s.cfg.SignatureWindow)
	if err != nil {
		s.logVerifierFailure(ctx, "replay_guard", err)
		s.auditSignature(ctx, &key.ID, in, false, reasonInternal)
		return domain.APIKey{}, domain.ErrSignatureInternal
	}
	if !fresh {
		s.auditSignature(ctx, &key.ID, in, false, reasonReplay)
		return domain.APIKey{}, domain.ErrSignatureReplay
	}

	expected := signing.Signature(key.SecretMaterial, signing.Canonicalize(req))
	if !signing.Equal(in.Signature, expected) {
		s.auditSignature(ctx, &key.ID, in, false, reasonMismatch)
		return domain.APIKey{}, domain.ErrSignatureMismatch
	}

	s.auditSignature(ctx, &key.ID, in, true, "")
	return key, nil
}

// auditSignature writes one audit row per verification attempt. Audit storage
// problems are logged and swallowed so they cannot change the auth outcome.
func (s *Service) auditSignature(ctx context.Context, apiKeyID *uuid.UUID, in SignedRequestInput, success bool, reason string) {
	if s.audit == nil {
		return
	}
	path := in.Request.PathAndQuery
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if err := s.audit.Insert(ctx, domain.SignatureAuditEvent{
		APIKeyID:      apiKeyID,
		Path:          path,
		Method:        strings.ToUpper(in.Request.Method),
		OccurredAt:    s.nowFn(),
		ClientAddress: in.ClientIP,
		Success:       success,
		FailureReason: reason,
	}); err != nil {
		slog.Default().WarnContext(ctx, "failed to persist signature audit event",
			"module", "signing",
			"layer", "application",
			"operation", "audit_signature",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) logVerifierFailure(ctx context.Context, stage string, err error) {
	slog.Default().ErrorContext(ctx, "signature verification infrastructure failure",
		"module", "signing",
		"layer", "application",
		"operation", "verify_signed_request",
		"stage", stage,
		"outcome", "failure",
		"error", err,
	)
}
