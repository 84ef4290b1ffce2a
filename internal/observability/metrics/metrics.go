package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

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
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	settlements        metric.Int64Counter
	entitlements       metric.Int64Counter
	proofVerifications metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "royaltyd"
	}
	meter := provider.Meter(name)

	settlements, err := meter.Int64Counter("royalty_settlements_finalized_total")
	if err != nil {
		return nil, err
	}
	entitlements, err := meter.Int64Counter("royalty_entitlements_granted_total")
	if err != nil {
		return nil, err
	}
	proofVerifications, err := meter.Int64Counter("royalty_proof_verifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		settlements:        settlements,
		entitlements:       entitlements,
		proofVerifications: proofVerifications,
	}, nil
}

// RecordSettlementFinalized increments finalized settlement counts.
// outcome is "created" for a first finalize and "replayed" when an
// existing settlement was reused.
func (m *Metrics) RecordSettlementFinalized(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.settlements.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEntitlementGranted increments entitlement grant counts.
func (m *Metrics) RecordEntitlementGranted(ctx context.Context) {
	if m == nil {
		return
	}
	m.entitlements.Add(ctx, 1)
}

// RecordProofVerification increments proof verification counts.
func (m *Metrics) RecordProofVerification(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.proofVerifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch protocol {
	case "grpc", "":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
