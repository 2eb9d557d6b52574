package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boubkhaled/streampump/internal/models"
	"github.com/boubkhaled/streampump/internal/services/database"
	"github.com/boubkhaled/streampump/internal/services/transfer"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *transfer.Service, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(dir, "api.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	spool := filepath.Join(dir, "spool")
	require.NoError(t, os.MkdirAll(spool, 0o750))

	svc := transfer.NewService(db, nil, transfer.Options{
		ChunkSize: 1024,
		SpoolDir:  spool,
		PoolSize:  2,
		QueueSize: 8,
	})
	t.Cleanup(svc.Close)

	app := fiber.New()

	app.Get("/health", NewHealthHandler(db, nil).HealthCheck)

	th := NewTransferHandler(svc)
	transfers := app.Group("/v1/transfers")
	transfers.Post("/", th.CreateTransfer)
	transfers.Get("/", th.ListTransfers)
	transfers.Get("/:id", th.GetTransfer)
	transfers.Delete("/:id", th.CancelTransfer)

	fh := NewFileHandler(spool, 1024)
	app.Get("/v1/files/+", fh.ServeFile)
	app.Get("/v1/checksums/+", fh.Checksum)

	return app, svc, spool
}

func decodeTransfer(t *testing.T, body io.Reader) models.Transfer {
	t.Helper()
	var tr models.Transfer
	require.NoError(t, json.NewDecoder(body).Decode(&tr))
	return tr
}

func TestHealth(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestCreateTransfer_AcceptedAndRuns(t *testing.T) {
	app, _, spool := newTestApp(t)

	payload := []byte(`{"source":{"type":"inline","data":"aGVsbG8gd29ybGQ="},"sink":{"type":"file","path":"hello.bin"}}`)
	req := httptest.NewRequest("POST", "/v1/transfers/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	created := decodeTransfer(t, resp.Body)
	assert.NotEqual(t, "", created.ID.String())

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest("GET", "/v1/transfers/"+created.ID.String(), nil)
		getResp, err := app.Test(getReq)
		if err != nil || getResp.StatusCode != fiber.StatusOK {
			return false
		}
		var tr models.Transfer
		if err := json.NewDecoder(getResp.Body).Decode(&tr); err != nil {
			return false
		}
		return tr.State == models.TransferFinished
	}, 5*time.Second, 20*time.Millisecond)

	got, err := os.ReadFile(filepath.Join(spool, "hello.bin")) // #nosec G304
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func TestCreateTransfer_ValidationError(t *testing.T) {
	app, _, _ := newTestApp(t)

	payload := []byte(`{"source":{"type":"file","path":"../escape"},"sink":{"type":"file","path":"out.bin"}}`)
	req := httptest.NewRequest("POST", "/v1/transfers/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetTransfer_BadID(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/transfers/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetTransfer_NotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/transfers/6b8bd1f0-96f9-4d9a-92bc-0c48e31c1c72", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListTransfers(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/transfers/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Transfers []models.Transfer `json:"transfers"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Count)
}

func TestServeFile_StreamsContent(t *testing.T) {
	app, _, spool := newTestApp(t)

	payload := bytes.Repeat([]byte("stream"), 1000)
	require.NoError(t, os.WriteFile(filepath.Join(spool, "served.bin"), payload, 0o640))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/files/served.bin", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestServeFile_TraversalRejected(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/files/..%2Fescape", nil))
	require.NoError(t, err)
	// Rejected either by path normalization (no route) or by spool confinement.
	assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
}

func TestServeFile_Missing(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/files/absent.bin", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestChecksum(t *testing.T) {
	app, _, spool := newTestApp(t)

	payload := []byte("checksum me")
	require.NoError(t, os.WriteFile(filepath.Join(spool, "sum.bin"), payload, 0o640))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/checksums/sum.bin", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Path   string `json:"path"`
		SHA256 string `json:"sha256"`
		Bytes  int64  `json:"bytes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	want := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(want[:]), body.SHA256)
	assert.Equal(t, int64(len(payload)), body.Bytes)
	assert.Equal(t, "sum.bin", body.Path)
}

func TestChecksum_MissingFile(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/checksums/absent.bin", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestChecksum_UnreadablePathIsNotNotFound(t *testing.T) {
	app, _, spool := newTestApp(t)

	// A directory exists but cannot be pumped; that is a server-side
	// failure, not a missing file.
	require.NoError(t, os.MkdirAll(filepath.Join(spool, "nested"), 0o750))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/checksums/nested", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestCancelTransfer_NotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/v1/transfers/6b8bd1f0-96f9-4d9a-92bc-0c48e31c1c72", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
