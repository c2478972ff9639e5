// Package metrics instruments storage facades with Prometheus counters and
// latency histograms.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sgl-project/fallible/pkg/storage"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultDenied   = "access_denied"
	ResultError    = "error"
)

// Metrics holds the collectors shared by every instrumented facade.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewMetrics registers the storage collectors with registerer, or with the
// default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		operationsTotal: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "fallible_storage_operations_total",
			Help: "Total number of storage operations by result",
		}, []string{"store", "provider", "op", "result"}),

		operationDuration: promauto.With(registerer).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fallible_storage_operation_duration_seconds",
			Help:    "Latency of storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"store", "provider", "op"}),

		bytesTransferred: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "fallible_storage_bytes_total",
			Help: "Bytes read from or written to the store, as stored",
		}, []string{"store", "provider", "direction"}),
	}
}

// Instrument wraps f so every operation is counted and timed. The wrapper
// keeps f's ExistenceProber support.
func (m *Metrics) Instrument(f storage.Facade) storage.Facade {
	md := f.Describe()
	i := &instrumented{
		next:     f,
		metrics:  m,
		store:    md.Name,
		provider: string(md.Identity.Provider()),
	}
	if p, ok := f.(storage.ExistenceProber); ok {
		return &probingInstrumented{instrumented: i, prober: p}
	}
	return i
}

type instrumented struct {
	next     storage.Facade
	metrics  *Metrics
	store    string
	provider string
}

var _ storage.Facade = (*instrumented)(nil)

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, storage.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, storage.ErrAccessDenied):
		return ResultDenied
	default:
		return ResultError
	}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.metrics.operationsTotal.WithLabelValues(i.store, i.provider, op, resultOf(err)).Inc()
	i.metrics.operationDuration.WithLabelValues(i.store, i.provider, op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) transferred(direction string, n int) {
	i.metrics.bytesTransferred.WithLabelValues(i.store, i.provider, direction).Add(float64(n))
}

func (i *instrumented) Read(ctx context.Context, path string, decrypt storage.TransformFunc) ([]byte, error) {
	start := time.Now()
	var stored int
	counting := func(raw []byte) ([]byte, error) {
		stored = len(raw)
		if decrypt == nil {
			return raw, nil
		}
		return decrypt(raw)
	}
	data, err := i.next.Read(ctx, path, counting)
	i.observe("read", start, err)
	i.transferred("read", stored)
	return data, err
}

func (i *instrumented) Write(ctx context.Context, path string, data []byte, encrypt storage.TransformFunc) error {
	start := time.Now()
	stored := len(data)
	counting := func(b []byte) ([]byte, error) {
		if encrypt != nil {
			var err error
			if b, err = encrypt(b); err != nil {
				return nil, err
			}
		}
		stored = len(b)
		return b, nil
	}
	err := i.next.Write(ctx, path, data, counting)
	i.observe("write", start, err)
	if err == nil {
		i.transferred("write", stored)
	}
	return err
}

func (i *instrumented) List(ctx context.Context, dirPath string) ([]string, error) {
	start := time.Now()
	keys, err := i.next.List(ctx, dirPath)
	i.observe("list", start, err)
	return keys, err
}

func (i *instrumented) ListVersions(ctx context.Context, filePath string) ([]string, error) {
	start := time.Now()
	versions, err := i.next.ListVersions(ctx, filePath)
	i.observe("list_versions", start, err)
	return versions, err
}

func (i *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.Delete(ctx, path)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Move(ctx context.Context, from, to string) error {
	start := time.Now()
	err := i.next.Move(ctx, from, to)
	i.observe("move", start, err)
	return err
}

func (i *instrumented) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	err := i.next.Copy(ctx, from, to)
	i.observe("copy", start, err)
	return err
}

func (i *instrumented) Stat(ctx context.Context, path string) (*storage.ObjectMetadata, error) {
	start := time.Now()
	md, err := i.next.Stat(ctx, path)
	i.observe("stat", start, err)
	return md, err
}

// Exists is counted as a success whatever it reports; only Probe can see
// the failures Exists masks.
func (i *instrumented) Exists(ctx context.Context, path string) bool {
	start := time.Now()
	ok := i.next.Exists(ctx, path)
	i.observe("exists", start, nil)
	return ok
}

func (i *instrumented) Describe() storage.StoreMetadata {
	return i.next.Describe()
}

type probingInstrumented struct {
	*instrumented
	prober storage.ExistenceProber
}

var _ storage.ExistenceProber = (*probingInstrumented)(nil)

func (p *probingInstrumented) Probe(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := p.prober.Probe(ctx, path)
	p.observe("exists", start, err)
	return ok, err
}
