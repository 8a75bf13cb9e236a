package payments

import (
	"context"
	"fmt"

	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

type CODBackend interface {
	ProcessCOD(ctx context.Context, req marketplace.CODRequest) (*marketplace.PaymentResult, error)
}

// CODProcessor confirms cash on delivery with the backend.
type CODProcessor struct {
	backend CODBackend
	logg    *logger.Logger
}

func NewCODProcessor(backend CODBackend, logg *logger.Logger) (*CODProcessor, error) {
	if backend == nil {
		return nil, fmt.Errorf("cod backend required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &CODProcessor{backend: backend, logg: logg}, nil
}

func (p *CODProcessor) Confirm(ctx context.Context, due OrderDue) error {
	logCtx := p.logg.WithField(ctx, "order_id", due.OrderID)
	result, err := p.backend.ProcessCOD(ctx, marketplace.CODRequest{OrderID: due.OrderID})
	if err != nil {
		p.logg.Warn(logCtx, "payment.cod.failed")
		return Classify(err, enums.PaymentFailureRejected)
	}
	if result == nil || !result.Success {
		p.logg.Warn(logCtx, "payment.cod.rejected")
		return Failure(enums.PaymentFailureRejected, nil)
	}
	p.logg.Info(logCtx, "payment.cod.confirmed")
	return nil
}
