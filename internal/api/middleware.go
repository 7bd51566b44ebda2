// Файл: internal/api/middleware.go
package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// AuthMiddleware проверяет заголовок Authorization: Bearer <token>.
// AuthMiddleware checks the Authorization: Bearer <token> header against the
// configured admin token. An empty configured token rejects everything:
// the API never runs open by accident.
func AuthMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				log.Println("AuthMiddleware: ADMIN_API_TOKEN не настроен, запрос отклонен.")
				http.Error(w, "Unauthorized: admin API is not configured", http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
				return
			}
			presented := strings.TrimPrefix(authHeader, "Bearer ")
			if presented == authHeader {
				http.Error(w, "Unauthorized: Bearer token expected", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) != 1 {
				log.Printf("AuthMiddleware: неверный токен с адреса %s", r.RemoteAddr)
				http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
