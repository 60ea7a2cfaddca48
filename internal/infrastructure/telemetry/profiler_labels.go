package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys.
const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelBillType  = "bill_type"
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
)

// MaxLabelValueLength caps label values.
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped from profiling labels. Party and payment
// ids belong on spans, not on pprof samples.
var highCardinalityLabels = map[string]bool{
	"party_id":       true,
	"payment_id":     true,
	"bill_id":        true,
	"receipt_number": true,
	"request_id":     true,
	"trace_id":       true,
	"span_id":        true,
}

// WithProfilingLabels runs fn with pprof labels attached so Pyroscope can
// slice CPU time by ledger operation.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// LedgerOperationLabels builds the label set for a ledger operation.
func LedgerOperationLabels(operation, billType string) map[string]string {
	labels := map[string]string{ProfilingLabelOperation: operation}
	if billType != "" {
		labels[ProfilingLabelBillType] = billType
	}
	return labels
}

// HTTPRequestLabels builds the label set for an HTTP route.
func HTTPRequestLabels(route, method string) map[string]string {
	labels := make(map[string]string, 2)
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	return labels
}

// sanitizeLabels flattens labels into sorted key/value pairs, dropping empty
// and high-cardinality entries.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	clean := make(map[string]string, len(labels))
	for k, v := range labels {
		key := sanitizeLabelKey(k)
		if key == "" || v == "" || highCardinalityLabels[key] {
			continue
		}
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		clean[key] = v
	}
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, clean[k])
	}
	return pairs
}

func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	var b strings.Builder
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		case c == ' ' || c == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}
