package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/careflow-platform/internal/tenancy"
)

// PatientJWT enforces an HMAC-signed JWT on patient endpoints and puts
// the subject (the patient id) into the request context.
func PatientJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := parseBearer(w, r, secret)
			if !ok {
				return
			}
			ctx := tenancy.WithPatientID(r.Context(), sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProviderJWT enforces an HMAC-signed JWT on provider endpoints and puts
// the subject (the provider id) into the request context.
func ProviderJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := parseBearer(w, r, secret)
			if !ok {
				return
			}
			ctx := tenancy.WithProviderID(r.Context(), sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(w http.ResponseWriter, r *http.Request, secret string) (string, bool) {
	if secret == "" {
		http.Error(w, "auth disabled", http.StatusUnauthorized)
		return "", false
	}
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		http.Error(w, "missing authorization header", http.StatusUnauthorized)
		return "", false
	}
	tokenString := strings.TrimPrefix(auth, "Bearer ")
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return "", false
	}
	return claims.Subject, true
}
