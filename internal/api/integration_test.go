//go:build integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/attendance"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/repository"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Start PostgreSQL container with pgvector
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "rollcall_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/rollcall_test?sslmode=disable", host, port.Port())

	if err := database.MigrateUp(ctx, connStr, testLogger()); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	testDB, err = database.NewPool(ctx, database.DefaultPoolConfig(connStr))
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func facePicture(seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x*4) ^ seed, uint8(y*4) + seed, seed, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestRouter wires the real stack over the mock face provider and a
// known faces directory holding alice and bob.
func newTestRouter(t *testing.T) (*Router, map[string][]byte) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), "TRUNCATE attendance_records, reference_embeddings")
	require.NoError(t, err)

	images := map[string][]byte{
		"alice": encodePNG(t, facePicture(10)),
		"bob":   encodePNG(t, facePicture(90)),
	}
	dir := t.TempDir()
	for id, data := range images {
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+".png"), data, 0o600))
	}

	logger := testLogger()
	ex := extractor.New(mock.New(), 1)
	cacheRepo := repository.NewEmbeddingCacheRepository(testDB)
	loader := registry.NewLoader(ex, cacheRepo, registry.LoaderConfig{Workers: 2, Model: "mock"}, logger)
	reg := registry.New(loader, registry.Config{Dir: dir, Metric: registry.MetricCosine, Threshold: 0.42}, logger)

	hub := ws.NewHub()
	registrySvc := service.NewRegistryService(service.RegistryDeps{
		Registry: reg,
		Pruner:   cacheRepo,
		Model:    "mock",
		Hub:      hub,
	}, logger)
	_, err = registrySvc.Reload(context.Background())
	require.NoError(t, err)

	pipeline := recognition.NewPipeline(ex, reg, nil, logger)
	recent := recognition.NewRecent(time.Minute)
	gate := attendance.NewGate(repository.NewAttendanceRepository(testDB), 55, logger)

	router := NewRouter(logger, &Dependencies{
		DB:          testDB,
		Registry:    reg,
		Recognition: service.NewRecognitionService(pipeline, recent, hub, logger),
		Attendance: service.NewAttendanceService(service.AttendanceDeps{
			Identifier: pipeline,
			Gate:       gate,
			Recent:     recent,
			Hub:        hub,
			Location:   time.UTC,
		}, logger),
		Registries: registrySvc,
		Hub:        hub,
	})
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })

	return router, images
}

func imageRequest(t *testing.T, method, path string, img []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="probe.png"`)
		h.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write(img)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestIntegration_HealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var ready handler.HealthResponse
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "ok", ready.Checks["database"])
	require.NotNil(t, ready.Identities)
	assert.Equal(t, 2, *ready.Identities)
}

func TestIntegration_RegistryEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.App().Test(httptest.NewRequest("GET", "/v1/registry", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	var list handler.ListIdentitiesResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 2, list.Total)

	// second reload is served from the embedding cache
	resp, err = router.App().Test(httptest.NewRequest("POST", "/v1/registry/reload", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var cached int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM reference_embeddings WHERE model = 'mock'").Scan(&cached))
	assert.Equal(t, 2, cached)
}

func TestIntegration_IdentifyThenMark(t *testing.T) {
	router, images := newTestRouter(t)

	// identify alice from her own reference image
	resp, err := router.App().Test(imageRequest(t, "POST", "/v1/identify", images["alice"]), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var identified handler.IdentifyResponse
	require.NoError(t, json.Unmarshal(body, &identified))
	require.Len(t, identified.Faces, 1)
	assert.Equal(t, "alice", identified.Faces[0].IdentityID)
	assert.InDelta(t, 100, identified.Faces[0].Confidence, 1e-3)

	// bob cannot mark with alice's face
	req := imageRequest(t, "POST", "/v1/attendance/mark", images["alice"])
	req.Header.Set(middleware.HeaderSubjectID, "bob")
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	// alice marks once
	req = imageRequest(t, "POST", "/v1/attendance/mark", images["alice"])
	req.Header.Set(middleware.HeaderSubjectID, "alice")
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	body, _ = io.ReadAll(resp.Body)
	var record domain.AttendanceRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, "alice", record.SubjectID)
	assert.Equal(t, domain.DayOf(time.Now().UTC()), record.Date)

	// and only once
	req = imageRequest(t, "POST", "/v1/attendance/mark", images["alice"])
	req.Header.Set(middleware.HeaderSubjectID, "alice")
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	var count int
	require.NoError(t, testDB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM attendance_records WHERE subject_id = 'alice'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIntegration_MarkWithoutRecentIdentification(t *testing.T) {
	router, _ := newTestRouter(t)

	req := imageRequest(t, "POST", "/v1/attendance/mark", nil)
	req.Header.Set(middleware.HeaderSubjectID, "alice")
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 422, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "NO_RECENT_IDENTIFICATION")
}
