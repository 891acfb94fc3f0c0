package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testErrorBody struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Path    string            `json:"path"`
	Errors  map[string]string `json:"errors"`
}

type authServer struct {
	handler http.Handler
	clock   *fakeClock
	users   *fakeUsers
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	return newAuthServerWith(t, plainHasher{})
}

func newAuthServerWith(t *testing.T, hasher PasswordHasher) *authServer {
	t.Helper()

	clock := newFakeClock()
	svc, users, _ := newTestServiceWith(clock, hasher)
	tokens, err := NewTokenService(testSecret, time.Hour, false)
	require.NoError(t, err)
	tokens.WithClock(clock.Now)

	h := NewHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("GET /api/whoami", RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id.ID, "username": id.Username, "role": id.Role})
	})))
	mux.HandleFunc("GET /api/public", func(w http.ResponseWriter, r *http.Request) {
		_, ok := IdentityFrom(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]bool{"authenticated": ok})
	})

	return &authServer{
		handler: Authenticate(tokens, users)(mux),
		clock:   clock,
		users:   users,
	}
}

func (s *authServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) (testEnvelope, AuthResult) {
	t.Helper()

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var result AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return env, result
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) testErrorBody {
	t.Helper()

	var body testErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthFlowEndToEnd(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	env, registered := decodeResult(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "User registered successfully", env.Message)

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"usernameOrEmail": "alice",
		"password":        "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, loggedIn := decodeResult(t, rec)
	assert.Equal(t, registered.ID, loggedIn.ID)

	rec = srv.do(t, http.MethodGet, "/api/whoami", loggedIn.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	srv.clock.Advance(time.Minute)
	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": loggedIn.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	env, refreshed := decodeResult(t, rec)
	assert.Equal(t, "Token refreshed successfully", env.Message)
	assert.Equal(t, loggedIn.RefreshToken, refreshed.RefreshToken)
	assert.NotEqual(t, loggedIn.AccessToken, refreshed.AccessToken)

	rec = srv.do(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": loggedIn.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": loggedIn.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgInvalidToken, decodeError(t, rec).Message)
}

func TestRegisterValidation(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "al",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "/api/auth/register", body.Path)
	assert.Contains(t, body.Errors, "username")
	assert.Equal(t, "Invalid email format", body.Errors["email"])
	assert.Contains(t, body.Errors, "password")
}

func TestRegisterTrimsBeforeValidating(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": " ab ", "email": "ab@example.com", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Errors, "username")

	rec = srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "  alice  ", "email": " alice@example.com ", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decodeResult(t, rec)
	assert.Equal(t, "alice", registered.Username)
	assert.Equal(t, "alice@example.com", registered.Email)
}

func TestPasswordLengthLimits(t *testing.T) {
	hashers := map[string]PasswordHasher{
		"bcrypt": BcryptHasher{Cost: bcrypt.MinCost},
		"argon2id": Argon2Hasher{Params: Argon2Params{
			Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		}},
	}

	for name, hasher := range hashers {
		t.Run(name, func(t *testing.T) {
			srv := newAuthServerWith(t, hasher)
			register := func(username, password string) *httptest.ResponseRecorder {
				return srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
					"username": username, "email": username + "@example.com", "password": password,
				})
			}

			atLimit := strings.Repeat("a", MaxPasswordBytes)
			rec := register("atlimit", atLimit)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			rec = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
				"usernameOrEmail": "atlimit", "password": atLimit,
			})
			assert.Equal(t, http.StatusOK, rec.Code)

			rec = register("overlimit", strings.Repeat("a", MaxPasswordBytes+1))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Errors, "password")

			// 40 runes pass length validation but take 80 bytes.
			rec = register("multibyte", strings.Repeat("é", 40))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrPasswordTooLong.Message, decodeError(t, rec).Message)
		})
	}
}

func TestRegisterRejectsMalformedJSON(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWrongPasswordIs401(t *testing.T) {
	srv := newAuthServer(t)
	srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "s3cret-pass",
	})

	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"usernameOrEmail": "alice", "password": "nope-nope",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgInvalidCredentials, decodeError(t, rec).Message)
}

func TestLogoutToleratesMissingBody(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateAnonymousPassesThrough(t *testing.T) {
	srv := newAuthServer(t)

	rec := srv.do(t, http.MethodGet, "/api/public", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/whoami", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgAuthenticationRequired, decodeError(t, rec).Message)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	srv := newAuthServer(t)
	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "s3cret-pass",
	})
	_, registered := decodeResult(t, rec)

	rec = srv.do(t, http.MethodGet, "/api/public", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgInvalidToken, decodeError(t, rec).Message)

	srv.clock.Advance(time.Hour)
	rec = srv.do(t, http.MethodGet, "/api/public", registered.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgTokenExpired, decodeError(t, rec).Message)
}

func TestAuthenticateRejectsDeletedSubject(t *testing.T) {
	srv := newAuthServer(t)
	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "s3cret-pass",
	})
	_, registered := decodeResult(t, rec)

	srv.users.update(registered.ID, func(u *User) { u.Username = "renamed" })

	rec = srv.do(t, http.MethodGet, "/api/whoami", registered.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, MsgInvalidToken, decodeError(t, rec).Message)
}
