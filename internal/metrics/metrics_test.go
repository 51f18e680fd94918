package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAuthOperation_LabelsByOperationAndOutcome は操作と結果のラベルごとに集計されることを検証する。
func TestRecordAuthOperation_LabelsByOperationAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthOperation("signin", "success")
	c.RecordAuthOperation("signin", "success")
	c.RecordAuthOperation("signin", "INVALID_CREDENTIALS")

	mf := findMetricFamily(t, reg, "fileauth_auth_operations_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "operation") != "signin" {
			t.Errorf("operation label = %q, want signin", labelValue(m, "operation"))
		}
		want := 1.0
		if labelValue(m, "outcome") == "success" {
			want = 2
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("outcome %s = %v, want %v", labelValue(m, "outcome"), got, want)
		}
	}
}

// TestRecordPasswordHashLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordPasswordHashLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPasswordHashLatency(80 * time.Millisecond)

	mf := findMetricFamily(t, reg, "fileauth_password_hash_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.079 || h.GetSampleSum() > 0.081 {
		t.Errorf("sample sum = %v, want ~0.08", h.GetSampleSum())
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコードごとに集計されることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(403)
	c.RecordHTTPStatus(403)

	mf := findMetricFamily(t, reg, "fileauth_http_status_total")
	for _, m := range mf.GetMetric() {
		want := 1.0
		if labelValue(m, "status_code") == "403" {
			want = 2
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("status %s = %v, want %v", labelValue(m, "status_code"), got, want)
		}
	}
}

// TestRecordRefreshTokensSwept_AddsCount は削除件数が加算されることを検証する。
func TestRecordRefreshTokensSwept_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRefreshTokensSwept(3)
	c.RecordRefreshTokensSwept(0)

	mf := findMetricFamily(t, reg, "fileauth_refresh_tokens_swept_total")
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("swept total = %v, want 3", got)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
