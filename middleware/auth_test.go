package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	. "github.com/smartystreets/goconvey/convey"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticate(t *testing.T) {
	Convey("Given a protected handler", t, func() {
		var gotPlayerID int
		var gotErr error
		protected := Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPlayerID, gotErr = GetPlayerIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		Convey("When a valid bearer token is presented", func() {
			token := signToken(t, testSecret, jwt.MapClaims{"player_id": float64(7)})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			Convey("Then the player ID is available from the context", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(gotErr, ShouldBeNil)
				So(gotPlayerID, ShouldEqual, 7)
			})
		})

		Convey("When the token rides in the query string", func() {
			token := signToken(t, testSecret, jwt.MapClaims{"player_id": float64(12)})
			req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			Convey("Then it is accepted the same way", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(gotPlayerID, ShouldEqual, 12)
			})
		})

		Convey("When no token is presented", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the token is signed with a different secret", func() {
			token := signToken(t, "wrong-secret", jwt.MapClaims{"player_id": float64(7)})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the token has a string player_id claim", func() {
			token := signToken(t, testSecret, jwt.MapClaims{"player_id": "42"})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			Convey("Then it still resolves", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(gotPlayerID, ShouldEqual, 42)
			})
		})

		Convey("When the token lacks the player_id claim", func() {
			token := signToken(t, testSecret, jwt.MapClaims{"sub": "someone"})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			Convey("Then the handler runs but the player ID is unavailable", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(gotErr, ShouldNotBeNil)
			})
		})
	})
}
