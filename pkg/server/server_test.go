package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/repositories/matchingrule"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	ruleroutes "github.com/Ramsey-B/fern/pkg/routes/rule"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig() config.Config {
	return config.Config{
		AppName:      "fern-test",
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
	}
}

// emptyDB satisfies database.DB with no rows behind it
type emptyDB struct{}

func (emptyDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (emptyDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if count, ok := dest.(*int); ok {
		*count = 0
		return nil
	}
	return errors.New("sql: no rows in result set")
}

func (emptyDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (emptyDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, errors.New("not supported")
}

func (emptyDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}

func (emptyDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("not supported")
}

func (emptyDB) Rebind(query string) string            { return query }
func (emptyDB) PingContext(ctx context.Context) error { return nil }
func (emptyDB) Close() error                          { return nil }

func (emptyDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, nil, errors.New("not supported")
}

func TestLivenessEndpoint(t *testing.T) {
	checker := health.NewChecker(nil, nil, nil, "test")
	s := New(testConfig(), testLogger(), Handlers{Health: checker})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestReadinessReflectsChecker(t *testing.T) {
	checker := health.NewChecker(nil, nil, nil, "test")
	s := New(testConfig(), testLogger(), Handlers{Health: checker})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady(true)

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTenantIsUnauthorized(t *testing.T) {
	s := New(testConfig(), testLogger(), Handlers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWiredRepositoryBackedRoute(t *testing.T) {
	repo := matchingrule.NewRepository(emptyDB{}, testLogger())
	s := New(testConfig(), testLogger(), Handlers{
		Rules: ruleroutes.NewHandler(repo, nil, testLogger()),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	// The handler must reach the wired repository rather than fail
	// resolving its dependencies
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":0`)
}

func TestGraphRoutesAbsentWhenDisabled(t *testing.T) {
	s := New(testConfig(), testLogger(), Handlers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/graph/partners/abc", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
