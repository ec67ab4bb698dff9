// Package order places an order through the supplier portal's html forms and
// recovers the confirmation code the portal answers with.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/supplier/forms"
	"supplierbot/internal/supplier/session"
)

const (
	report_flow_transition   = "flow.transition"
	report_flow_order_form   = "flow.order-form"
	report_flow_confirmation = "flow.confirmation"
)

const (
	simulatedPrefix      = "SERV-"
	unknownOrderFallback = "SERV-CONF"
)

// Order is what the flow needs to place one order.
type Order struct {
	Credentials     supplier.Credentials
	ExternalOrderID string
	Items           []supplier.OrderItem
}

type Options struct {
	// LoginURL defaults to the fetcher's base url.
	LoginURL string
	// OrderURL is fetched after logging in when set, otherwise the page the
	// login led to is searched for the order form.
	OrderURL string
}

// SyntheticCode is the confirmation code used when the portal did not
// provide one.
func SyntheticCode(externalOrderId string) string {
	if externalOrderId == "" {
		return unknownOrderFallback
	}
	return simulatedPrefix + externalOrderId
}

// ItemFields are the per item form fields submitted for items, indexed from 0.
func ItemFields(items []supplier.OrderItem) map[string]string {
	fields := map[string]string{}
	for i, item := range items {
		suffix := strconv.Itoa(i)
		fields["quantidade_"+suffix] = strconv.Itoa(item.Quantity)
		fields["gtin_"+suffix] = item.GTIN
		fields["codigo_"+suffix] = item.Code
	}
	return fields
}

type Flow struct {
	fetcher session.Fetcher
	opts    Options
	tel     telemetry.API
}

func NewFlow(fetcher session.Fetcher, opts Options, tel telemetry.API) Flow {
	assert.NotNil(fetcher)
	assert.NotNil(tel)
	return Flow{
		fetcher: fetcher,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("order", tel),
	}
}

// run is the mutable state of one execution of the flow.
type run struct {
	order     Order
	state     State
	page      fetch.Page
	simulated bool
	result    supplier.OrderResult
}

// Run drives the flow from AwaitingLogin to Done. It always produces a result
// unless a request fails, network errors are returned as is and nothing is
// retried.
func (f Flow) Run(ctx context.Context, order Order) (supplier.OrderResult, error) {
	r := &run{order: order, state: AwaitingLogin}
	for r.state != Done {
		var next State
		var err error
		switch r.state {
		case AwaitingLogin:
			next, err = f.login(ctx, r)
		case AwaitingOrderPage:
			next, err = f.submitOrder(ctx, r)
		case AwaitingConfirmation:
			next, err = f.confirm(r)
		default:
			return supplier.OrderResult{}, fmt.Errorf("order flow: unknown state %v", r.state)
		}
		if err != nil {
			return supplier.OrderResult{}, fmt.Errorf("order flow: %v: %w", r.state, err)
		}
		f.tel.ReportDebug(report_flow_transition, r.state.String(), next.String(), r.order.ExternalOrderID)
		r.state = next
	}
	return r.result, nil
}

func (f Flow) login(ctx context.Context, r *run) (State, error) {
	page, _, err := session.Login(ctx, f.fetcher, f.opts.LoginURL, r.order.Credentials, f.tel)
	if err != nil {
		return AwaitingLogin, err
	}
	r.page = page

	if f.opts.OrderURL != "" {
		r.page, err = f.fetcher.Get(ctx, f.opts.OrderURL)
		if err != nil {
			return AwaitingLogin, err
		}
	}
	return AwaitingOrderPage, nil
}

func (f Flow) submitOrder(ctx context.Context, r *run) (State, error) {
	if len(r.order.Items) == 0 {
		r.simulated = true
		return AwaitingConfirmation, nil
	}

	desc, err := forms.LocateOrder(r.page)
	if errors.Is(err, supplier.ErrFormNotFound) {
		f.tel.ReportDebug(report_flow_order_form, err, r.page.URL.String())
		r.simulated = true
		return AwaitingConfirmation, nil
	}
	if err != nil {
		return AwaitingOrderPage, err
	}

	payload := desc.Payload(supplier.Credentials{})
	for name, value := range ItemFields(r.order.Items) {
		payload.Set(name, value)
	}

	r.page, err = f.fetcher.Fetch(ctx, desc.Method, desc.Action.String(), payload)
	if err != nil {
		return AwaitingOrderPage, err
	}
	return AwaitingConfirmation, nil
}

func (f Flow) confirm(r *run) (State, error) {
	if !r.simulated {
		code, selector, ok := FindConfirmationCode(r.page.Doc)
		if ok {
			f.tel.ReportDebug(report_flow_confirmation, selector, code)
			r.result = supplier.NewOrderResult(code, supplier.ORDER_PLACED, false)
			return Done, nil
		}
		f.tel.ReportWarning(
			report_flow_confirmation,
			fmt.Errorf("no confirmation code on page, using a synthetic one"),
			r.page.URL.String(),
		)
	}
	r.result = supplier.NewOrderResult(SyntheticCode(r.order.ExternalOrderID), supplier.ORDER_PLACED, true)
	return Done, nil
}
