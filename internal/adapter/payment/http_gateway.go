package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

const maxResponseBytes = 1 << 20

var ErrUnexpectedResponse = errors.New("unexpected payment response")

// HTTPGateway posts payment requests to the payment-intent endpoint as JSON.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
	tracer   trace.Tracer
}

func NewHTTPGateway(endpoint string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		tracer:   otel.Tracer("payment-gateway"),
	}
}

// CreatePaymentIntent returns a declined result for 4xx answers carrying an
// error message; 5xx answers and undecodable bodies are transport errors.
func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	ctx, span := g.tracer.Start(ctx, "payment.CreatePaymentIntent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("encode payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	span.SetAttributes(
		attribute.String("http.method", http.MethodPost),
		attribute.String("downstream.url", g.endpoint),
	)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment request failed")
		return domain.PaymentResult{}, fmt.Errorf("post payment request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("read payment response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
		return domain.PaymentResult{}, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var result domain.PaymentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if result.Error == "" {
			result.Error = resp.Status
		}
		result.Success = nil
	}
	if result.Success == nil && result.Error == "" {
		return domain.PaymentResult{}, fmt.Errorf("%w: neither success nor error", ErrUnexpectedResponse)
	}

	return result, nil
}
