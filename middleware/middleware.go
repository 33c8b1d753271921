// Package middleware guards HTTP handlers with persona token validation. The
// same checks are exposed for net/http, echo and gin.
package middleware

import (
	"context"
	"errors"
	"net/http"

	persona "github.com/pilab-dev/persona-client"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ClaimsKey is the echo and gin context key holding the validated *persona.Claims.
const ClaimsKey = "persona-claims"

const tracerName = "github.com/pilab-dev/persona-client/middleware"

// Validator validates the token presented by an inbound request.
// *persona.Tokens satisfies it.
type Validator interface {
	ValidateRequest(ctx context.Context, in persona.InboundRequest, scope string) (*persona.Validation, error)
}

type claimsCtxKey struct{}

// ContextWithClaims returns ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *persona.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClaimsFromContext returns the claims stored by one of the middlewares.
func ClaimsFromContext(ctx context.Context) (*persona.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*persona.Claims)
	return claims, ok && claims != nil
}

// Rejection is the JSON body written when a request is turned away.
type Rejection struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

// check validates the request and returns either claims or a rejection.
func check(ctx context.Context, v Validator, in persona.InboundRequest, scope string) (*persona.Claims, *Rejection) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "persona.RequireToken")
	defer span.End()

	span.SetAttributes(attribute.String("persona.scope", scope))

	result, err := v.ValidateRequest(ctx, in, scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		switch {
		case errors.Is(err, perrors.ErrNoTokenSupplied):
			return nil, &Rejection{Status: http.StatusUnauthorized, Code: "missing_token", Msg: "No OAuth token supplied"}
		case errors.Is(err, perrors.ErrMalformedAuthHeader):
			return nil, &Rejection{Status: http.StatusUnauthorized, Code: "invalid_authorization_header", Msg: "Invalid Authorization header"}
		default:
			log.Ctx(ctx).Error().Err(err).Msg("failed to resolve token")
			return nil, &Rejection{Status: http.StatusUnauthorized, Code: "invalid_token", Msg: "Invalid token"}
		}
	}

	span.SetAttributes(attribute.String("persona.validation", result.Result.String()))

	if result.Valid() {
		return result.Claims, nil
	}

	span.SetStatus(codes.Error, result.Result.String())
	log.Ctx(ctx).Debug().
		Str("result", result.Result.String()).
		Str("reason", result.Reason).
		Str("scope", scope).
		Msg("token rejected")

	return nil, rejectionFor(result)
}

func rejectionFor(v *persona.Validation) *Rejection {
	switch v.Result {
	case perrors.Expired:
		return &Rejection{Status: http.StatusUnauthorized, Code: "token_expired", Msg: "Token has expired"}
	case perrors.InsufficientScope:
		return &Rejection{Status: http.StatusForbidden, Code: "insufficient_scope", Msg: "Token does not grant the required scope"}
	case perrors.EmptyResponse, perrors.RemoteUnavailable:
		return &Rejection{Status: http.StatusServiceUnavailable, Code: "validation_unavailable", Msg: "Token could not be validated"}
	default:
		return &Rejection{Status: http.StatusUnauthorized, Code: "invalid_token", Msg: "Invalid token"}
	}
}

// authenticateHeader is the RFC 6750 challenge for a rejection.
func authenticateHeader(r *Rejection) string {
	switch r.Code {
	case "missing_token":
		return "Bearer"
	case "insufficient_scope":
		return `Bearer error="insufficient_scope"`
	default:
		return `Bearer error="invalid_token"`
	}
}
