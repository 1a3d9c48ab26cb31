// Package metrics holds the billing instruments. Every observation is
// written to the prometheus registry scraped at /metrics and, when OTLP
// export is enabled, to the OpenTelemetry meter provider.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes the billing instruments.
type Metrics struct {
	billsCreated  *prometheus.CounterVec
	billsUpdated  *prometheus.CounterVec
	payments      *prometheus.CounterVec
	paymentAmount *prometheus.HistogramVec

	otelBills    metric.Int64Counter
	otelPayments metric.Float64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics export initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New registers the billing instruments on reg and provider.
func New(cfg Config, reg prometheus.Registerer, provider metric.MeterProvider) (*Metrics, error) {
	m := &Metrics{
		billsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicdesk_bills_created_total",
			Help: "Bills created by bill type.",
		}, []string{"bill_type"}),
		billsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicdesk_bills_updated_total",
			Help: "Bill edits by bill type.",
		}, []string{"bill_type"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicdesk_payments_recorded_total",
			Help: "Recorded payments by mode and resulting payment status.",
		}, []string{"payment_mode", "payment_status"}),
		paymentAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinicdesk_payment_amount",
			Help:    "Recorded payment amount distribution.",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000},
		}, []string{"payment_mode"}),
	}
	for _, c := range []prometheus.Collector{m.billsCreated, m.billsUpdated, m.payments, m.paymentAmount} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "clinicdesk"
	}
	meter := provider.Meter(name)

	var err error
	if m.otelBills, err = meter.Int64Counter("clinicdesk.bills"); err != nil {
		return nil, err
	}
	if m.otelPayments, err = meter.Float64Counter("clinicdesk.payments.amount"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordBillCreated counts a newly stored bill.
func (m *Metrics) RecordBillCreated(ctx context.Context, billType string) {
	if m == nil {
		return
	}
	billType = sanitizeLabel(billType)
	m.billsCreated.WithLabelValues(billType).Inc()
	m.otelBills.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bill_type", billType),
		attribute.String("operation", "create"),
	))
}

// RecordBillUpdated counts an edit of a stored bill.
func (m *Metrics) RecordBillUpdated(ctx context.Context, billType string) {
	if m == nil {
		return
	}
	billType = sanitizeLabel(billType)
	m.billsUpdated.WithLabelValues(billType).Inc()
	m.otelBills.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bill_type", billType),
		attribute.String("operation", "update"),
	))
}

// RecordPayment counts a recorded payment and observes its amount.
func (m *Metrics) RecordPayment(ctx context.Context, mode, status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	mode = sanitizeLabel(mode)
	value := amount.InexactFloat64()
	m.payments.WithLabelValues(mode, sanitizeLabel(status)).Inc()
	m.paymentAmount.WithLabelValues(mode).Observe(value)
	m.otelPayments.Add(ctx, value, metric.WithAttributes(attribute.String("payment_mode", mode)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

func sanitizeLabel(val string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	if val == "" {
		return "unknown"
	}
	return val
}
