package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	headerTenant      = "X-Tenant-ID"
	headerCartSession = "X-Cart-Session"

	RoleStaff = "staff"
)

// Claims are the bearer token claims the API reads. Subject is the customer id.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is who is calling, resolved once per request.
type Principal struct {
	TenantID string
	// Owner is the customer from the bearer token, or the guest session when no
	// token was sent. It is zero for anonymous callers.
	Owner        domain.OwnerKey
	GuestSession string
	Staff        bool
}

type principalKey struct{}

func principalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

var (
	errMissingBearer  = errors.New("authorization header must be a bearer token")
	errAuthDisabled   = errors.New("token authentication is not configured")
	errMissingSubject = errors.New("token has no subject")
)

// Authenticator resolves the tenant and the owner of shop-scoped requests.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware requires X-Tenant-ID and resolves the caller. A bad token is rejected
// outright; a missing one leaves the request anonymous or guest.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(headerTenant))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, codeTenantRequired, headerTenant+" header is required")
			return
		}

		p := Principal{
			TenantID:     tenant,
			GuestSession: strings.TrimSpace(r.Header.Get(headerCartSession)),
		}
		if authz := r.Header.Get("Authorization"); authz != "" {
			claims, err := a.parse(authz)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid bearer token")
				return
			}
			if claims.TenantID != "" && claims.TenantID != tenant {
				writeError(w, http.StatusForbidden, codeForbidden, "token was issued for another tenant")
				return
			}
			p.Owner = domain.CustomerOwner(claims.Subject)
			p.Staff = claims.Role == RoleStaff
		} else if p.GuestSession != "" {
			p.Owner = domain.GuestOwner(p.GuestSession)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func (a *Authenticator) parse(header string) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errMissingBearer
	}
	if len(a.secret) == 0 {
		return nil, errAuthDisabled
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

// RequireOwner rejects anonymous callers.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principalFrom(r.Context()).Owner.ID == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "a bearer token or "+headerCartSession+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff admits only tokens carrying the staff role.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		switch {
		case p.Owner.Kind != domain.OwnerCustomer:
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "a staff bearer token is required")
		case !p.Staff:
			writeError(w, http.StatusForbidden, codeForbidden, "staff role required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
