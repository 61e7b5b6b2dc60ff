package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ogurasousui/checkin-ledger/internal/core/finalization"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()
	require.Same(t, r.c, NewRecorder().c)

	opened := testutil.ToFloat64(r.c.tenureOpened.WithLabelValues(string(tenure.SubjectAssignment)))
	finalized := testutil.ToFloat64(r.c.finalizedCheckIns.WithLabelValues(string(snapshot.ChangeBulkCheckInFinalization)))
	rejected := testutil.ToFloat64(r.c.rejections.WithLabelValues(string(finalization.CategoryAssignments)))

	r.TenureOpened(tenure.SubjectAssignment)
	r.Finalized(snapshot.ChangeBulkCheckInFinalization, 3)
	r.Rejected(finalization.CategoryAssignments)
	r.SnapshotCreated(snapshot.ChangeBulkCheckInFinalization)
	r.ObserveRPC("/checkin.v1.CheckInService/FinalizeCheckIns", "OK", 10*time.Millisecond)

	require.Equal(t, opened+1, testutil.ToFloat64(r.c.tenureOpened.WithLabelValues(string(tenure.SubjectAssignment))))
	require.Equal(t, finalized+3, testutil.ToFloat64(r.c.finalizedCheckIns.WithLabelValues(string(snapshot.ChangeBulkCheckInFinalization))))
	require.Equal(t, rejected+1, testutil.ToFloat64(r.c.rejections.WithLabelValues(string(finalization.CategoryAssignments))))
}

func TestNewServer(t *testing.T) {
	require.Nil(t, NewServer(config.MetricsConfig{}))

	NewRecorder().SnapshotCreated(snapshot.ChangePositionTenure)

	srv := NewServer(config.MetricsConfig{ListenAddr: ":0", Path: "/metrics"})
	require.NotNil(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "checkin_snapshot_created_total"))
}
