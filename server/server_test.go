package server

import (
	"bytes"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	configPath string
	handler    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	path := writeConfig(t, t.TempDir(), testConfig)
	store, err := NewStore(path)
	require.NoError(t, err)

	s := New(store, true)
	return &testServer{Server: s, configPath: path, handler: s.Handler()}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	form := url.Values{"user_id": {userID}}
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, body := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, body)
	return body["token"].(string)
}

func jsonRequest(t *testing.T, method, target string, v interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req
}

// makeDataset creates a dataset with a 500x375 image and the given annotation lines per name.
func makeDataset(t *testing.T, annotations map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"images", "labels"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0755))
	}
	for name, lines := range annotations {
		img := imaging.New(500, 375, color.White)
		require.NoError(t, imaging.Save(img, filepath.Join(root, "images", name+".jpg")))
		require.NoError(t, os.WriteFile(filepath.Join(root, "labels", name+".txt"),
			[]byte(lines), 0644))
	}
	return root
}

func TestHome(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kittiscale", body["message"])

	rec, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	t.Run("form", func(t *testing.T) {
		token := s.token(t, "alice@example.com")
		userID, err := verifyToken(s.config.Get(), token, time.Now())
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", userID)
	})

	t.Run("json", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/auth", map[string]string{
			"user_id": "alice@example.com",
		})
		rec, body := s.do(t, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice@example.com", body["user_id"])
		assert.NotEmpty(t, body["token"])
	})

	t.Run("unknown user", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/auth", map[string]string{"user_id": "mallory"})
		rec, _ := s.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		rec, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/auth", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		rec, _ := s.do(t, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/auth", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestVerifyToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secret = "s3cret"
	cfg.UserIDs = []string{"alice"}
	cfg.TokenLifetime = time.Hour
	cfg.TokenLeeway = 10 * time.Second
	issued := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	token, err := issueToken(cfg, "alice", issued)
	require.NoError(t, err)

	_, err = verifyToken(cfg, token, issued.Add(30*time.Minute))
	assert.NoError(t, err)
	_, err = verifyToken(cfg, token, issued.Add(time.Hour+5*time.Second))
	assert.NoError(t, err, "within the leeway")
	_, err = verifyToken(cfg, token, issued.Add(time.Hour+time.Minute))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	_, err = verifyToken(cfg, token, issued.Add(-time.Minute))
	assert.ErrorIs(t, err, jwt.ErrTokenUsedBeforeIssued)

	other := cfg
	other.Secret = "other"
	_, err = verifyToken(other, token, issued)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	other = cfg
	other.UserIDs = []string{"bob"}
	_, err = verifyToken(other, token, issued)
	assert.ErrorIs(t, err, errUnknownUser)

	// Tokens without an issue time are rejected.
	noIAT, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"exp":     issued.Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	_, err = verifyToken(cfg, noIAT, issued)
	assert.Error(t, err)

	// Only HS256 is accepted.
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	_, err = verifyToken(cfg, hs512, issued)
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice@example.com")

	t.Run("query parameters", func(t *testing.T) {
		root := makeDataset(t, map[string]string{
			"a": "helmet 0 0 0 178 84 230 143 0 0 0 0 0 0 0\n",
		})
		out := t.TempDir()
		query := url.Values{
			"input_path":    {root},
			"output_path":   {out},
			"target_width":  {"284"},
			"target_height": {"284"},
		}
		req := httptest.NewRequest(http.MethodGet, "/images?"+query.Encode(), nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec, body := s.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "data successfully scaled", body["message"])
		assert.Equal(t, []interface{}{"a"}, body["scaled"])

		output := body["output"].(string)
		assert.Equal(t, out, filepath.Dir(output))
		data, err := os.ReadFile(filepath.Join(output, "annotations", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "helmet 0 0 0 101.1 63.62 130.64 108.3 0 0 0 0 0 0 0\n", string(data))
	})

	t.Run("json body and default output", func(t *testing.T) {
		root := makeDataset(t, map[string]string{
			"a": "helmet 0 0 0 178 84 230 143 0 0 0 0 0 0 0\n",
		})
		req := jsonRequest(t, http.MethodPost, "/images", map[string]interface{}{
			"input_path":    root,
			"target_width":  284,
			"target_height": 500,
		})
		req.Header.Set("Authorization", "bearer "+token)

		rec, body := s.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, body)
		output := body["output"].(string)
		assert.Equal(t, root, filepath.Dir(output))
		data, err := os.ReadFile(filepath.Join(output, "annotations", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "helmet 0 0 0 101.1 112 130.64 190.67 0 0 0 0 0 0 0\n", string(data))
	})

	t.Run("invalid annotations", func(t *testing.T) {
		root := makeDataset(t, map[string]string{
			"a": "hel met 0 0 0 178 84 230 143 0 0 0 0 0 0 0\n",
		})
		req := httptest.NewRequest(http.MethodGet, "/images?input_path="+url.QueryEscape(root), nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec, body := s.do(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, body["error"], "invalid class name")

		// The response names the output folder created before the failure.
		output, ok := body["output"].(string)
		require.True(t, ok, body)
		assert.Equal(t, root, filepath.Dir(output))
		assert.DirExists(t, output)
		assert.NoFileExists(t, filepath.Join(output, "annotations", "a.txt"))
	})

	t.Run("invalid layout", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/images?input_path="+url.QueryEscape(t.TempDir()), nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec, _ := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid size", func(t *testing.T) {
		for _, query := range []string{"target_width=wide", "target_height=0"} {
			req := httptest.NewRequest(http.MethodGet, "/images?input_path=x&"+query, nil)
			req.Header.Set("Authorization", "Bearer "+token)

			rec, _ := s.do(t, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		}
	})

	t.Run("missing input path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/images", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec, _ := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthorized", func(t *testing.T) {
		for _, header := range []string{"", "Bearer", "Token " + token, "Bearer garbage"} {
			req := httptest.NewRequest(http.MethodGet, "/images", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}

			rec, _ := s.do(t, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		}
	})
}

func TestReload(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice@example.com")

	rec, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/config/reload", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bob is unknown until the config is reloaded.
	req := jsonRequest(t, http.MethodPost, "/auth", map[string]string{"user_id": "bob@example.com"})
	rec, _ = s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	writeConfig(t, filepath.Dir(s.configPath), strings.Replace(testConfig,
		"  - alice@example.com\n", "  - alice@example.com\n  - bob@example.com\n", 1))

	req = httptest.NewRequest(http.MethodPost, "/config/reload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, body := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, float64(2), body["users"])

	s.token(t, "bob@example.com")

	// A broken config is rejected and the active one stays in place.
	writeConfig(t, filepath.Dir(s.configPath), "secret: [\n")
	req = httptest.NewRequest(http.MethodPost, "/config/reload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = s.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	s.token(t, "bob@example.com")
}
