package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/cluster"
	"reportaciudad/internal/geo"
	"reportaciudad/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *atomic.Int32, chan recorded) {
	t.Helper()
	var hits atomic.Int32
	seen := make(chan recorded, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		rec := recorded{method: r.Method, path: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		seen <- rec
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, seen
}

func TestRejectWithBlankReasonSendsNothing(t *testing.T) {
	srv, hits, _ := newServer(t, http.StatusOK, `{"success":true}`)
	c := New(srv.URL, zap.NewNop())

	for _, reason := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, c.RejectReport(context.Background(), "r1", reason), moderation.ErrInvalidReason)
		assert.ErrorIs(t, c.RejectUser(context.Background(), "u1", reason), moderation.ErrInvalidReason)
	}
	assert.Zero(t, hits.Load())
}

func TestRejectReportPostsReason(t *testing.T) {
	srv, _, seen := newServer(t, http.StatusOK, `{"success":true,"data":{"id":"r1"}}`)
	c := New(srv.URL, zap.NewNop())
	c.SetToken("tkn")

	require.NoError(t, c.RejectReport(context.Background(), "r1", "Duplicado"))
	got := <-seen
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/admin/reports/r1/reject", got.path)
	assert.Equal(t, "Bearer tkn", got.auth)
	assert.Equal(t, "Duplicado", got.body["motivo"])
}

func TestServerErrorsMapToSentinels(t *testing.T) {
	srv, _, _ := newServer(t, http.StatusConflict, `{"success":false,"error":"ALREADY_PROCESSED","message":"ya procesado"}`)
	c := New(srv.URL, zap.NewNop())

	err := c.ValidateReport(context.Background(), "r1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, moderation.ErrAlreadyProcessed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "ya procesado", apiErr.Message)
}

func TestLoginPendingAccount(t *testing.T) {
	srv, _, _ := newServer(t, http.StatusForbidden, `{"success":false,"error":"PENDING_VALIDATION","message":"pendiente"}`)
	_, err := New(srv.URL, zap.NewNop()).Login(context.Background(), "a@b.co", "secreto123")
	assert.ErrorIs(t, err, auth.ErrPendingValidation)
}

func TestTransportErrorIsReturnedUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, zap.NewNop()).ValidateReport(context.Background(), "r1", "")
	require.Error(t, err)
	var apiErr *APIError
	assert.NotErrorAs(t, err, &apiErr)
}

func TestMapReportsDecodes(t *testing.T) {
	srv, _, seen := newServer(t, http.StatusOK, `{"success":true,"data":{"reportes":[
		{"id":"a","titulo":"Hueco","coordenadas":{"latitude":4.711,"longitude":-74.0721},"estado":"nuevo","categoria":"Baches"}]}}`)
	c := New(srv.URL, zap.NewNop())

	reports, err := c.MapReports(context.Background(), geo.Coordinate{Latitude: 4.711, Longitude: -74.0721}, 2.5, 50)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "a", reports[0].ID)
	assert.Equal(t, 4.711, reports[0].Position().Latitude)

	got := <-seen
	assert.Equal(t, "/reportes/mapa?lat=4.711&lng=-74.0721&radio=2.5&limite=50", got.path)
}

func TestMapViewReusesClustersForSameViewport(t *testing.T) {
	reports := []MapReport{
		{ID: "a", Coordinates: geo.Coordinate{Latitude: 4.7110, Longitude: -74.0721}},
		{ID: "b", Coordinates: geo.Coordinate{Latitude: 4.7111, Longitude: -74.0722}},
	}
	v := NewMapView(cluster.MetricPlanar)
	vp := geo.Viewport{Center: geo.Coordinate{Latitude: 4.7110, Longitude: -74.0721}, LatitudeDelta: 0.7, LongitudeDelta: 0.7}

	first := v.Clusters(reports, vp)
	require.Len(t, first, 1)
	assert.Equal(t, 2, first[0].Count)

	vp.Center.Latitude += 0.0005 // below the move threshold
	v.Clusters(reports, vp)
	assert.Equal(t, 1, v.Recomputations())

	vp.LatitudeDelta = 0.005
	assert.Len(t, v.Clusters(reports, vp), 2)
	assert.Equal(t, 2, v.Recomputations())
}

func TestIDsAreEscapedInPath(t *testing.T) {
	srv, _, seen := newServer(t, http.StatusOK, `{"success":true}`)
	c := New(srv.URL, zap.NewNop())

	require.NoError(t, c.ValidateReport(context.Background(), "a/b c", ""))
	assert.Equal(t, "/admin/reports/a%2Fb%20c/validate", (<-seen).path)

	require.NoError(t, c.RejectUser(context.Background(), "u#1", "Datos falsos"))
	assert.Equal(t, "/admin/users/u%231/reject", (<-seen).path)
}
