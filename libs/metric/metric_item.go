package metric

// MetricItem - 一个独立的metric模块对应一个MetricItem
// JSONString must be safe to call concurrently with the module updating it.
type MetricItem interface {
	JSONString() string
}

// ItemFunc adapts a snapshot function to a MetricItem.
type ItemFunc func() string

func (f ItemFunc) JSONString() string {
	return f()
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
