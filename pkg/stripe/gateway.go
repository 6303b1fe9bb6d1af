package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

// CreatePayment initiates capture of the buyer's payment method for the full
// order total. The gateway confirms asynchronously via webhook.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*stripe.PaymentIntent, error) {
	req := params.toStripeRequest(c.ensureIdempotencyKey("payment.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_payment", map[string]any{
		"order_id": params.OrderID.String(),
		"amount":   params.AmountCents,
	})

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	intent, err := c.api.V1PaymentIntents.Create(callCtx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create payment")
	}

	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_intent_id": intent.ID,
		"status":            string(intent.Status),
	})
	return intent, nil
}

// CreateTransfer pays one seller their sub-order total.
func (c *Client) CreateTransfer(ctx context.Context, params TransferCreateParams) (*stripe.Transfer, error) {
	req := params.toStripeRequest(c.ensureIdempotencyKey("transfer.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_transfer", map[string]any{
		"order_id":       params.OrderID.String(),
		"sub_order_id":   params.SubOrderID.String(),
		"transfer_group": params.TransferGroup,
		"amount":         params.AmountCents,
	})

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	transfer, err := c.api.V1Transfers.Create(callCtx, req)
	if err != nil {
		c.log(ctx, "error", "create_transfer", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create transfer")
	}

	c.log(ctx, "response", "create_transfer", map[string]any{"transfer_id": transfer.ID})
	return transfer, nil
}

// CreateRefund refunds part of a captured payment back to the buyer. The
// gateway rejects amounts above the intent's remaining refundable balance.
func (c *Client) CreateRefund(ctx context.Context, params RefundCreateParams) (*stripe.Refund, error) {
	req := params.toStripeRequest(c.ensureIdempotencyKey("refund.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_refund", map[string]any{
		"order_id":          params.OrderID.String(),
		"payment_intent_id": params.PaymentIntentID,
		"amount":            params.AmountCents,
	})

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	refund, err := c.api.V1Refunds.Create(callCtx, req)
	if err != nil {
		c.log(ctx, "error", "create_refund", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create refund")
	}

	c.log(ctx, "response", "create_refund", map[string]any{"refund_id": refund.ID})
	return refund, nil
}

// ReverseTransfer claws funds back from a prior seller transfer. The gateway
// rejects amounts above the transfer's remaining reversible balance.
func (c *Client) ReverseTransfer(ctx context.Context, params ReversalCreateParams) (*stripe.TransferReversal, error) {
	req := params.toStripeRequest(c.ensureIdempotencyKey("reversal.create", params.IdempotencyKey))
	c.log(ctx, "request", "reverse_transfer", map[string]any{
		"order_id":     params.OrderID.String(),
		"sub_order_id": params.SubOrderID.String(),
		"transfer_id":  params.TransferID,
		"amount":       params.AmountCents,
	})

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	reversal, err := c.api.V1TransferReversals.Create(callCtx, req)
	if err != nil {
		c.log(ctx, "error", "reverse_transfer", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "reverse transfer")
	}

	c.log(ctx, "response", "reverse_transfer", map[string]any{"reversal_id": reversal.ID})
	return reversal, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Warn(ctx, fmt.Sprintf("stripe %s failed", op))
		return
	}
	c.logger.Info(ctx, fmt.Sprintf("stripe %s", phase))
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.HTTPStatusCode)
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op)).
			WithDetails(map[string]any{
				"stripe_code": string(apiErr.Code),
				"stripe_type": string(apiErr.Type),
			})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("stripe %s timed out", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("stripe %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest, http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return pkgerrors.CodeGateway
	default:
		return pkgerrors.CodeGateway
	}
}
