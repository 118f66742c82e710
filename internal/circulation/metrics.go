package circulation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	issues     metric.Int64Counter
	returns    metric.Int64Counter
	rejections metric.Int64Counter
	fines      metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	issues, err := meter.Int64Counter("circulation.issues",
		metric.WithDescription("Books issued"))
	if err != nil {
		return nil, fmt.Errorf("create issues counter: %w", err)
	}

	returns, err := meter.Int64Counter("circulation.returns",
		metric.WithDescription("Books returned"))
	if err != nil {
		return nil, fmt.Errorf("create returns counter: %w", err)
	}

	rejections, err := meter.Int64Counter("circulation.rejections",
		metric.WithDescription("Operations refused by a precondition"))
	if err != nil {
		return nil, fmt.Errorf("create rejections counter: %w", err)
	}

	fines, err := meter.Float64Histogram("circulation.fine_amount",
		metric.WithDescription("Fines assessed at return"))
	if err != nil {
		return nil, fmt.Errorf("create fines histogram: %w", err)
	}

	return &metrics{issues: issues, returns: returns, rejections: rejections, fines: fines}, nil
}

func (m *metrics) rejected(ctx context.Context, op string, err error) {
	code := Code(err)
	if code == "" {
		code = "internal"
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", code),
	))
}

func (m *metrics) fined(ctx context.Context, amount decimal.Decimal) {
	m.fines.Record(ctx, amount.InexactFloat64())
}
