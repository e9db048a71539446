package http

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rfdeck/appos/internal/installer"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/registry"
	"github.com/rfdeck/appos/internal/sandbox"
	"github.com/rfdeck/appos/internal/scripting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	perms := permissions.NewEngine(permissions.NewMemoryStore(), logging.NewNop())
	engine := scripting.NewGojaEngine(logging.NewNop(), time.Second)
	sandboxes := sandbox.NewManager(engine, perms, sandbox.Host{},
		sandbox.Config{}, logging.NewNop())
	reg := registry.NewManager(
		registry.Config{MaxApps: 16, AppsDir: filepath.Join(t.TempDir(), "apps")},
		installer.New(logging.NewNop()), perms, sandboxes, logging.NewNop())

	h := NewHandlers(reg)
	router := gin.New()
	router.GET("/apps", h.ListApps)
	router.POST("/apps", h.InstallApp)
	router.GET("/apps/current", h.CurrentApp)
	router.GET("/apps/:id", h.GetApp)
	router.DELETE("/apps/:id", h.UninstallApp)
	router.POST("/apps/:id/start", h.StartApp)
	router.POST("/apps/:id/stop", h.StopApp)
	router.GET("/apps/:id/permissions", h.GetPermissions)

	return router, makePackage(t)
}

func makePackage(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"index.js": "var ready = true;",
		"manifest.json": `{
  "name": "demo",
  "version": "1.0.0",
  "entry_point": "index.js",
  "permissions": "rf.receive,ui.create"
}`,
	} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "demo.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAppLifecycleOverHTTP(t *testing.T) {
	router, pkg := newTestRouter(t)

	// Install.
	rec := doJSON(t, router, http.MethodPost, "/apps", gin.H{"package_path": pkg})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var installed struct {
		AppID string `json:"app_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &installed))
	require.NotEmpty(t, installed.AppID)

	// Start runs the entry script in a real goja context.
	rec = doJSON(t, router, http.MethodPost, "/apps/"+installed.AppID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/apps/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), installed.AppID)

	// Permissions reflect the manifest grant.
	rec = doJSON(t, router, http.MethodGet, "/apps/"+installed.AppID+"/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rf.receive")
	assert.NotContains(t, rec.Body.String(), "rf.transmit")

	// Stop and uninstall.
	rec = doJSON(t, router, http.MethodPost, "/apps/"+installed.AppID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/apps/"+installed.AppID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/apps/"+installed.AppID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartUnknownAppReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/apps/app_deadbeef/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstallBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/apps", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLimit(t *testing.T) {
	router, pkg := newTestRouter(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/apps", gin.H{"package_path": pkg})
		require.Equal(t, http.StatusCreated, rec.Code, fmt.Sprintf("install %d: %s", i, rec.Body.String()))
	}

	rec := doJSON(t, router, http.MethodGet, "/apps?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Apps []json.RawMessage `json:"apps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Apps, 2)
}
