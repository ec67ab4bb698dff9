package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/supplier/listing"
	"supplierbot/internal/supplier/order"
	"supplierbot/internal/supplier/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_orchestrator_handle   = "orchestrator.handle"
	report_orchestrator_order_id = "orchestrator.order-id"
)

const MessageNoProducts = "no products extracted"

var (
	tracer = otel.Tracer("supplierbot/worker")
	meter  = otel.Meter("supplierbot/worker")
)

// TradingAPI is the part of the trading API client the orchestrator relays
// results to.
type TradingAPI interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
	SubmitProducts(ctx context.Context, token string, products []supplier.ProductRecord) (json.RawMessage, error)
	PatchOrder(ctx context.Context, token, orderId, confirmationCode string, status supplier.OrderStatus) (json.RawMessage, error)
}

// JobResult is what a successful job reports back to the queue.
type JobResult struct {
	Kind              Kind                 `json:"kind"`
	ProductsSubmitted int                  `json:"produtos_enviados"`
	Message           string               `json:"mensagem,omitempty"`
	ExternalOrderID   string               `json:"id_pedido,omitempty"`
	ConfirmationCode  string               `json:"codigo_confirmacao,omitempty"`
	Status            supplier.OrderStatus `json:"status,omitempty"`
	Simulated         bool                 `json:"simulado,omitempty"`
	APIResponse       json.RawMessage      `json:"resposta_api,omitempty"`
}

// Orchestrator runs one job end to end: supplier portal first, entirely in
// memory, then a single authentication and a single call to the trading API.
type Orchestrator struct {
	cfg        Config
	api        TradingAPI
	newFetcher func() (session.Fetcher, error)
	tel        telemetry.API

	processed metric.Int64Counter
	failed    metric.Int64Counter
}

func NewOrchestrator(cfg Config, api TradingAPI, tel telemetry.API) (Orchestrator, error) {
	assert.NotNil(api)
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("worker", tel)

	fetchOpts, err := cfg.Supplier.FetchOptions()
	if err != nil {
		return Orchestrator{}, err
	}

	processed, err := meter.Int64Counter(
		"jobs.processed",
		metric.WithDescription("Jobs that finished successfully."),
	)
	if err != nil {
		return Orchestrator{}, err
	}
	failed, err := meter.Int64Counter(
		"jobs.failed",
		metric.WithDescription("Jobs that returned an error."),
	)
	if err != nil {
		return Orchestrator{}, err
	}

	return Orchestrator{
		cfg: cfg,
		api: api,
		// every job gets its own fetcher and with it its own cookie jar
		newFetcher: func() (session.Fetcher, error) {
			return fetch.New(fetchOpts, tel)
		},
		tel:       tel,
		processed: processed,
		failed:    failed,
	}, nil
}

// Handle validates job and runs it. Invalid jobs fail with
// supplier.ErrInvalidPayload before any request is made, trading API failures
// are returned as *supplier.ExternalAPIError.
func (o Orchestrator) Handle(ctx context.Context, job Job) (JobResult, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Handle", trace.WithAttributes(
		attribute.String("job.kind", string(job.Kind)),
	))
	defer span.End()
	kindAttr := metric.WithAttributes(attribute.String("kind", string(job.Kind)))

	result, err := o.handle(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failed.Add(ctx, 1, kindAttr)
		o.tel.ReportWarning(report_orchestrator_handle, err, job.Kind, job.Credentials.String())
		return JobResult{}, err
	}
	o.processed.Add(ctx, 1, kindAttr)
	return result, nil
}

func (o Orchestrator) handle(ctx context.Context, job Job) (JobResult, error) {
	err := job.Validate()
	if err != nil {
		return JobResult{}, err
	}
	if o.cfg.APIUser == "" || o.cfg.APIPassword == "" {
		return JobResult{}, supplier.InvalidPayload("trading api credentials are not configured (DESAFIO_API_USER, DESAFIO_API_PASSWORD)")
	}

	fetcher, err := o.newFetcher()
	if err != nil {
		return JobResult{}, err
	}

	switch job.Kind {
	case KIND_SCRAPE:
		return o.runScrape(ctx, fetcher, job)
	case KIND_ORDER:
		return o.runOrder(ctx, fetcher, job)
	}
	return JobResult{}, supplier.InvalidPayload("unknown job kind %q", job.Kind)
}

func (o Orchestrator) authenticate(ctx context.Context) (string, error) {
	token, err := o.api.Authenticate(ctx, o.cfg.APIUser, o.cfg.APIPassword)
	if err != nil {
		return "", &supplier.ExternalAPIError{Op: "authenticate", Err: err}
	}
	return token, nil
}

func (o Orchestrator) runScrape(ctx context.Context, fetcher session.Fetcher, job Job) (JobResult, error) {
	scraper := session.NewScraper(fetcher, session.Options{
		LoginURL:    o.cfg.Supplier.LoginURL,
		ProductsURL: o.cfg.Supplier.ProductsURL,
		Listing:     listing.Options{MaxPages: o.cfg.Supplier.MaxPages},
	}, o.tel)

	products, err := scraper.Scrape(ctx, job.Credentials)
	if err != nil {
		return JobResult{}, err
	}
	o.tel.ReportDebug(report_orchestrator_handle, "scraped products", len(products))
	if len(products) == 0 {
		return JobResult{
			Kind:              KIND_SCRAPE,
			ProductsSubmitted: 0,
			Message:           MessageNoProducts,
		}, nil
	}

	token, err := o.authenticate(ctx)
	if err != nil {
		return JobResult{}, err
	}
	res, err := o.api.SubmitProducts(ctx, token, products)
	if err != nil {
		return JobResult{}, &supplier.ExternalAPIError{Op: "submit products", Err: err}
	}
	return JobResult{
		Kind:              KIND_SCRAPE,
		ProductsSubmitted: len(products),
		APIResponse:       res,
	}, nil
}

func (o Orchestrator) runOrder(ctx context.Context, fetcher session.Fetcher, job Job) (JobResult, error) {
	if _, err := strconv.ParseInt(job.ExternalOrderID, 10, 64); err != nil {
		o.tel.ReportWarning(
			report_orchestrator_order_id,
			fmt.Errorf("external order id is not an integer, the trading api may reject it"),
			job.ExternalOrderID,
		)
	}

	items := make([]supplier.OrderItem, len(job.Items))
	for i, item := range job.Items {
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		items[i] = item
	}

	flow := order.NewFlow(fetcher, order.Options{
		LoginURL: o.cfg.Supplier.LoginURL,
		OrderURL: o.cfg.Supplier.OrderURL,
	}, o.tel)
	result, err := flow.Run(ctx, order.Order{
		Credentials:     job.Credentials,
		ExternalOrderID: job.ExternalOrderID,
		Items:           items,
	})
	if err != nil {
		return JobResult{}, err
	}

	token, err := o.authenticate(ctx)
	if err != nil {
		return JobResult{}, err
	}
	res, err := o.api.PatchOrder(ctx, token, job.ExternalOrderID, result.ConfirmationCode(), result.Status())
	if err != nil {
		return JobResult{}, &supplier.ExternalAPIError{Op: "patch order", Err: err}
	}
	return JobResult{
		Kind:             KIND_ORDER,
		ExternalOrderID:  job.ExternalOrderID,
		ConfirmationCode: result.ConfirmationCode(),
		Status:           result.Status(),
		Simulated:        result.Simulated(),
		APIResponse:      res,
	}, nil
}
