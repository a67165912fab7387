package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/delta10/globe-layers/internal/utils"
)

type ClaimsWithGroups struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups"`
}

// NewJWKS retrieves the key set at jwksURL and keeps it refreshed in the
// background.
func NewJWKS(jwksURL string) (*keyfunc.JWKS, error) {
	return keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Printf("could not refresh JWKS: %s", err)
		},
	})
}

// authenticate requires a valid bearer token and, when allowedGroups is not
// empty, membership of one of the groups.
func authenticate(verify jwt.Keyfunc, allowedGroups []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString := strings.TrimPrefix(header, "Bearer ")
			if header == "" || tokenString == header {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims := &ClaimsWithGroups{}
			token, err := jwt.ParseWithClaims(tokenString, claims, verify)
			if err != nil || !token.Valid {
				log.Printf("rejected token from %s: %v", utils.ReadUserIP(r), err)
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			if len(allowedGroups) > 0 && !utils.AnyInSlice(claims.Groups, allowedGroups) {
				writeError(w, http.StatusForbidden, "user is not a member of an allowed group")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
