// Package telemetry counts what the de-identification service does and
// serves the counts in the Prometheus text exposition format. It tracks
// reports by kind, messages by outcome, Rewrite duration and HTTP request
// duration.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7deid/internal/platform/report"
)

// OutcomeOK labels messages that were de-identified without a fatal error.
const OutcomeOK = "ok"

// rewriteBuckets are the Rewrite duration boundaries in seconds. A rewrite
// is a handful of regexp passes over one message.
var rewriteBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.010, 0.025, 0.050, 0.100,
}

// requestBuckets are the HTTP request duration boundaries in seconds.
var requestBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// reportKinds are exposed at zero before the first report of that kind.
var reportKinds = []report.Kind{
	report.KindMalformedIdentifier,
	report.KindAmbiguousIdentity,
	report.KindUnresolvedGenerator,
	report.KindGeneratorFailure,
	report.KindRewriteFailure,
	report.KindUnknown,
}

// histogram keeps non-cumulative bucket counts; the exposition makes them
// cumulative.
type histogram struct {
	mu      sync.Mutex
	bounds  []float64
	buckets []int64
	count   int64
	sum     float64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, buckets: make([]int64, len(bounds))}
}

func (h *histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	if i < len(h.buckets) {
		h.buckets[i]++
	}
	h.count++
	h.sum += v
	h.mu.Unlock()
}

// snapshot returns cumulative bucket counts, the total count and the sum.
func (h *histogram) snapshot() ([]int64, int64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

// Count returns the number of observations.
func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// counterVec is a set of counters sharing one label.
type counterVec struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterVec() *counterVec {
	return &counterVec{items: make(map[string]*int64)}
}

func (c *counterVec) inc(label string) {
	c.mu.RLock()
	p, ok := c.items[label]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if p, ok = c.items[label]; !ok {
			p = new(int64)
			c.items[label] = p
		}
		c.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

func (c *counterVec) get(label string) int64 {
	c.mu.RLock()
	p, ok := c.items[label]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// snapshot returns the counters sorted by label.
func (c *counterVec) snapshot() ([]string, map[string]int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := make([]string, 0, len(c.items))
	values := make(map[string]int64, len(c.items))
	for k, p := range c.items {
		labels = append(labels, k)
		values[k] = atomic.LoadInt64(p)
	}
	sort.Strings(labels)
	return labels, values
}

// requestKey labels one HTTP request histogram.
type requestKey struct {
	method, route, status string
}

// Provider holds every metric of the process. It implements deid.Observer.
type Provider struct {
	reports  *counterVec
	messages *counterVec
	rewrite  *histogram

	reqMu    sync.RWMutex
	requests map[requestKey]*histogram
	active   int64
}

// NewProvider returns an empty Provider.
func NewProvider() *Provider {
	return &Provider{
		reports:  newCounterVec(),
		messages: newCounterVec(),
		rewrite:  newHistogram(rewriteBuckets),
		requests: make(map[requestKey]*histogram),
	}
}

// ObserveRewrite records the duration of one Rewrite run.
func (p *Provider) ObserveRewrite(d time.Duration) {
	p.rewrite.Observe(d.Seconds())
}

// ObserveMessage counts one message under OutcomeOK, or under the report
// kind of err.
func (p *Provider) ObserveMessage(err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = string(report.KindOf(err))
	}
	p.messages.inc(outcome)
}

// Reports returns a sink that counts every report by kind. Put it in a
// report.Multi next to the sinks that keep the reports.
func (p *Provider) Reports() report.Sink {
	return reportCounter{p: p}
}

// ReportCount returns the number of reports of kind k.
func (p *Provider) ReportCount(k report.Kind) int64 {
	return p.reports.get(string(k))
}

// MessageCount returns the number of messages with the given outcome.
func (p *Provider) MessageCount(outcome string) int64 {
	return p.messages.get(outcome)
}

// RewriteCount returns the number of Rewrite runs observed.
func (p *Provider) RewriteCount() int64 {
	return p.rewrite.Count()
}

// RequestCount returns the number of requests observed for method, route
// and status.
func (p *Provider) RequestCount(method, route string, status int) int64 {
	p.reqMu.RLock()
	h := p.requests[requestKey{method, route, strconv.Itoa(status)}]
	p.reqMu.RUnlock()
	if h == nil {
		return 0
	}
	return h.Count()
}

type reportCounter struct {
	p *Provider
}

func (r reportCounter) Report(err error) report.Handle {
	h := report.NewHandle(err)
	r.Record(h, err)
	return h
}

// Record implements report.Recorder.
func (r reportCounter) Record(h report.Handle, _ error) {
	r.p.reports.inc(string(h.Kind))
}

func (p *Provider) requestHistogram(k requestKey) *histogram {
	p.reqMu.RLock()
	h, ok := p.requests[k]
	p.reqMu.RUnlock()
	if ok {
		return h
	}
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	if h, ok = p.requests[k]; !ok {
		h = newHistogram(requestBuckets)
		p.requests[k] = h
	}
	return h
}

// MetricsMiddleware returns an Echo middleware that records the duration of
// every request by method, route pattern and status code.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			atomic.AddInt64(&p.active, -1)
			// Raw paths of unmatched requests would grow the label set
			// without bound.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			k := requestKey{c.Request().Method, route, strconv.Itoa(c.Response().Status)}
			p.requestHistogram(k).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// PrometheusHandler serves every metric in the Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP hl7deid_reports_total Failures reported during de-identification, by kind.\n")
		b.WriteString("# TYPE hl7deid_reports_total counter\n")
		labels, values := p.reports.snapshot()
		seen := make(map[string]bool, len(labels))
		for _, k := range reportKinds {
			seen[string(k)] = true
			fmt.Fprintf(&b, "hl7deid_reports_total{kind=%q} %d\n", k, values[string(k)])
		}
		for _, l := range labels {
			if !seen[l] {
				fmt.Fprintf(&b, "hl7deid_reports_total{kind=%q} %d\n", l, values[l])
			}
		}
		b.WriteByte('\n')

		b.WriteString("# HELP hl7deid_messages_total Messages run through de-identification, by outcome.\n")
		b.WriteString("# TYPE hl7deid_messages_total counter\n")
		labels, values = p.messages.snapshot()
		if len(labels) == 0 {
			labels = []string{OutcomeOK}
		}
		for _, l := range labels {
			fmt.Fprintf(&b, "hl7deid_messages_total{outcome=%q} %d\n", l, values[l])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP hl7deid_rewrite_duration_seconds Time spent rewriting message text.\n")
		b.WriteString("# TYPE hl7deid_rewrite_duration_seconds histogram\n")
		writeHistogram(&b, "hl7deid_rewrite_duration_seconds", "", p.rewrite)
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		p.reqMu.RLock()
		keys := make([]requestKey, 0, len(p.requests))
		for k := range p.requests {
			keys = append(keys, k)
		}
		p.reqMu.RUnlock()
		sort.Slice(keys, func(i, j int) bool {
			x, y := keys[i], keys[j]
			if x.route != y.route {
				return x.route < y.route
			}
			if x.method != y.method {
				return x.method < y.method
			}
			return x.status < y.status
		})
		for _, k := range keys {
			l := fmt.Sprintf("method=%q,route=%q,status_code=%q", k.method, k.route, k.status)
			writeHistogram(&b, "http_server_request_duration_seconds", l, p.requestHistogram(k))
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n", atomic.LoadInt64(&p.active))

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum, count, sum := h.snapshot()
	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, bound := range h.bounds {
		fmt.Fprintf(b, "%s_bucket{%sle=%q} %d\n", name, prefix, formatBound(bound), cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, count)
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
