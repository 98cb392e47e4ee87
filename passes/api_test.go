package passes_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stampably/walletpass/internal/applepass"
	"github.com/stampably/walletpass/passes"
	"github.com/stampably/walletpass/passes/models"
)

// writeTestCredential lays an ephemeral signing credential down on disk
// the way a deployment would provide it.
func writeTestCredential(t *testing.T) (certPath, keyPath, authorityPath string) {
	t.Helper()
	cred, err := applepass.NewEphemeralCredential(time.Now().Add(-time.Hour), 24*time.Hour)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	authorityPath = filepath.Join(dir, "authority.pem")
	require.NoError(t, os.WriteFile(certPath, cred.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, cred.KeyPEM, 0o600))
	require.NoError(t, os.WriteFile(authorityPath, cred.AuthorityPEM, 0o600))
	return certPath, keyPath, authorityPath
}

// fakeWalletUpstream is a minimal remote wallet API: everything is absent
// on first read, present after an insert.
type fakeWalletUpstream struct {
	stored  map[string]bool
	inserts int
	updates int
}

func (f *fakeWalletUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			id := parts[len(parts)-1]
			if !f.stored[id] {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			w.Write([]byte("{}"))
		case http.MethodPost:
			var body struct {
				ID string `json:"id"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.stored[body.ID] = true
			f.inserts++
			w.Write([]byte("{}"))
		case http.MethodPut:
			f.updates++
			w.Write([]byte("{}"))
		}
	})
}

func newTestRouter(t *testing.T, cfg *passes.Config) (chi.Router, *passes.Service) {
	t.Helper()
	repo := passes.NewRepository()
	service := passes.NewService(repo, cfg, nil)
	router := chi.NewRouter()
	passes.NewAPI(service).AppendRoutes(router)
	return router, service
}

func appleConfig(t *testing.T) *passes.Config {
	cert, key, authority := writeTestCredential(t)
	cfg := passes.DefaultConfig()
	cfg.Apple.CertificatePath = cert
	cfg.Apple.PrivateKeyPath = key
	cfg.Apple.AuthorityCertPath = authority
	cfg.Apple.PassTypeIdentifier = "pass.com.stampably.loyalty"
	cfg.Apple.TeamIdentifier = "ABCDE12345"
	cfg.Apple.OrganizationName = "Stampably"
	// Force the in-process fallback so the test does not depend on the
	// external tool being installed.
	cfg.Apple.OpenSSLBinary = "openssl-not-installed"
	return cfg
}

func seedStampCard(t *testing.T, service *passes.Service, current, required int) *models.CardRecord {
	t.Helper()
	card := &models.CardRecord{
		ID:             "card-1",
		Type:           models.CardTypeStamp,
		CustomerToken:  "customer-42",
		CustomerName:   "Ada Lovelace",
		Business:       models.Business{ID: "biz-1", Name: "Cafe Luna", BrandColor: "#1D3557"},
		CurrentStamps:  current,
		StampsRequired: required,
	}
	require.NoError(t, service.SeedCard(context.Background(), card))
	return card
}

func TestApplePassEndpoint(t *testing.T) {
	router, service := newTestRouter(t, appleConfig(t))
	seedStampCard(t, service, 7, 10)

	t.Run("returns a signed bundle", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/apple", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/vnd.apple.pkpass", w.Header().Get("Content-Type"))
		require.Equal(t, "attachment; filename=CafeLuna.pkpass", w.Header().Get("Content-Disposition"))

		zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
		require.NoError(t, err)

		names := map[string]bool{}
		for _, f := range zr.File {
			names[f.Name] = true
		}
		for _, want := range []string{"pass.json", "manifest.json", "signature", "icon.png", "icon@2x.png", "icon@3x.png", "logo.png", "logo@2x.png"} {
			require.True(t, names[want], "bundle missing %s", want)
		}
	})

	t.Run("unknown card is a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/nope/apple", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("degenerate card is a 400 naming fields", func(t *testing.T) {
		require.NoError(t, service.SeedCard(context.Background(), &models.CardRecord{
			ID:       "bad-1",
			Type:     models.CardTypeStamp,
			Business: models.Business{ID: "biz-1", Name: "Cafe Luna"},
		}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/bad-1/apple", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			InvalidFields []string `json:"invalid_fields"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Contains(t, resp.InvalidFields, "stamps_required")
	})
}

func TestApplePassEndpoint_MissingConfigServesGuidance(t *testing.T) {
	router, service := newTestRouter(t, passes.DefaultConfig())
	seedStampCard(t, service, 7, 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/apple", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "apple.certificate_path")
}

func TestApplePassEndpoint_ExpiredCertificateIs502(t *testing.T) {
	cfg := appleConfig(t)
	cred, err := applepass.NewEphemeralCredential(time.Now().Add(-48*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Apple.CertificatePath = filepath.Join(dir, "cert.pem")
	cfg.Apple.PrivateKeyPath = filepath.Join(dir, "key.pem")
	cfg.Apple.AuthorityCertPath = filepath.Join(dir, "authority.pem")
	require.NoError(t, os.WriteFile(cfg.Apple.CertificatePath, cred.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(cfg.Apple.PrivateKeyPath, cred.KeyPEM, 0o600))
	require.NoError(t, os.WriteFile(cfg.Apple.AuthorityCertPath, cred.AuthorityPEM, 0o600))

	router, service := newTestRouter(t, cfg)
	seedStampCard(t, service, 7, 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/apple", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Empty(t, w.Header().Get("Content-Disposition"), "no archive may be emitted")
}

func TestGoogleSaveLinkEndpoint(t *testing.T) {
	upstream := &fakeWalletUpstream{stored: map[string]bool{}}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	_, key, _ := writeTestCredential(t)
	cfg := passes.DefaultConfig()
	cfg.Google.IssuerID = "3388000000012345"
	cfg.Google.ServiceAccountEmail = "svc@issuer.example"
	cfg.Google.PrivateKeyPath = key
	cfg.Google.APIBaseURL = srv.URL

	router, service := newTestRouter(t, cfg)
	seedStampCard(t, service, 7, 10)

	t.Run("returns a save link and upserts", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/google?type=stamp", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var link struct {
			SaveURL string `json:"save_url"`
			Token   string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
		require.True(t, strings.HasPrefix(link.SaveURL, "https://pay.google.com/gp/v/save/"))
		require.Empty(t, link.Token, "raw token only appears with debug")
		require.Equal(t, 2, upstream.inserts)
	})

	t.Run("second call updates instead of inserting", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/google", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, 2, upstream.inserts)
		require.Equal(t, 2, upstream.updates)
	})

	t.Run("debug exposes the raw token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/google?debug=1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var link struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
		require.NotEmpty(t, link.Token)
	})

	t.Run("type mismatch is a 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/google?type=membership", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGoogleSaveLinkEndpoint_UpstreamFailureIs502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, key, _ := writeTestCredential(t)
	cfg := passes.DefaultConfig()
	cfg.Google.IssuerID = "3388000000012345"
	cfg.Google.ServiceAccountEmail = "svc@issuer.example"
	cfg.Google.PrivateKeyPath = key
	cfg.Google.APIBaseURL = srv.URL

	router, service := newTestRouter(t, cfg)
	seedStampCard(t, service, 7, 10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passes/card-1/google", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		UpstreamStatus int `json:"upstream_status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusInternalServerError, resp.UpstreamStatus)
}
