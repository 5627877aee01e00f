package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.Equal(t, ErrMetricLabelExist, metric.SetMetrics("TEST", mockItem), "label(TEST)不应该设置成功")
	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1)应该设置成功")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")

	metric.RemoveMetrics("TEST1")
	assert.False(t, metric.HasMetrics("TEST1"))
}

func TestMetricSet_GetAllLabels(t *testing.T) {
	metric := newTestMetric()
	assert.Nil(t, metric.SetMetrics("A", ItemFunc(func() string { return "a" })))

	assert.Equal(t, []string{"A", "TEST"}, metric.GetAllLabels())
}

func TestMetricSet_Snapshot(t *testing.T) {
	metric := newTestMetric()
	assert.Nil(t, metric.SetMetrics("A", ItemFunc(func() string { return `{"a":1}` })))

	assert.Equal(t, map[string]string{"A": `{"a":1}`, "TEST": "TEST"}, metric.Snapshot())
	assert.Equal(t, map[string]string{"A": `{"a":1}`}, metric.Snapshot("A", "missing"))
}
