package adapter

import (
	"context"

	"xtrace-checkout/internal/domain/model"
)

// PaymentGateway is the hex port for the external payment gateway.
//
// Collect hands the order to the gateway and blocks until the gateway reports
// exactly one outcome: a GatewaySuccess, or a *domain.GatewayError for a failure
// callback. Any other error means the outcome is unknown.
type PaymentGateway interface {
	Name() string
	Collect(ctx context.Context, order model.GatewayOrder) (model.GatewaySuccess, error)
}
