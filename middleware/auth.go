package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const playerContextKey contextKey = "player"

// Имя JWT claim с идентификатором игрока. Токен выпускает внешняя
// система аутентификации; движок только читает его.
const jwtClaimPlayerID = "player_id"

// Authenticate проверяет bearer-токен и кладёт claims в контекст.
// Для websocket-рукопожатий токен принимается и из query-параметра,
// потому что браузерный WebSocket API не умеет выставлять заголовки.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), playerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// GetPlayerIDFromContext достаёт ID игрока из claims в контексте запроса.
func GetPlayerIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(playerContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("player claims not found in context or invalid type")
	}

	playerIDClaim, ok := claims[jwtClaimPlayerID]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", jwtClaimPlayerID)
	}

	playerIDFloat, ok := playerIDClaim.(float64)
	if !ok {
		playerIDStr, okStr := playerIDClaim.(string)
		if okStr {
			playerIDInt, err := strconv.Atoi(playerIDStr)
			if err == nil && playerIDInt > 0 {
				return playerIDInt, nil
			}
		}
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64 or string, got %T", jwtClaimPlayerID, playerIDClaim)
	}

	playerID := int(playerIDFloat)
	if playerID <= 0 {
		return 0, fmt.Errorf("invalid player ID value in '%s' claim: %d", jwtClaimPlayerID, playerID)
	}

	return playerID, nil
}
