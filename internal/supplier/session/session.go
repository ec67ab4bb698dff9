// Package session drives a supplier portal login and the product scrape that
// follows it.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/supplier/forms"
	"supplierbot/internal/supplier/listing"
)

const (
	report_login        = "login"
	report_login_verify = "login.verify"
)

// Fetcher is the part of *fetch.Fetcher a session needs.
type Fetcher interface {
	Get(ctx context.Context, target string) (fetch.Page, error)
	Fetch(ctx context.Context, method, target string, form url.Values) (fetch.Page, error)
}

// Login fetches the login page and submits its login form with creds. The
// portal gives no reliable failure signal, so the page returned is whatever
// the submission led to. When the login page has no form, the login page
// itself is returned and submitted is false.
func Login(ctx context.Context, fetcher Fetcher, loginUrl string, creds supplier.Credentials, tel telemetry.API) (page fetch.Page, submitted bool, err error) {
	loginPage, err := fetcher.Get(ctx, loginUrl)
	if err != nil {
		return fetch.Page{}, false, err
	}

	desc, err := forms.LocateLogin(loginPage)
	if errors.Is(err, supplier.ErrFormNotFound) {
		tel.ReportWarning(report_login, fmt.Errorf("login form: %w", err), loginPage.URL.String())
		return loginPage, false, nil
	}
	if err != nil {
		return fetch.Page{}, false, err
	}

	tel.ReportDebug(report_login, desc.Method, desc.Action.String(), desc.Rule, creds.String())
	page, err = fetcher.Fetch(ctx, desc.Method, desc.Action.String(), desc.Payload(creds))
	if err != nil {
		return fetch.Page{}, true, err
	}

	if creds.Username != "" && forms.HasPasswordForm(page.Doc) {
		tel.ReportWarning(
			report_login_verify,
			fmt.Errorf("password form still present after login, credentials may be wrong"),
			page.URL.String(),
		)
	}
	return page, true, nil
}

type Options struct {
	// LoginURL and ProductsURL default to the fetcher's base url.
	LoginURL    string
	ProductsURL string
	Listing     listing.Options
}

// Scraper logs into the portal and reads its product listing.
type Scraper struct {
	fetcher Fetcher
	opts    Options
	tel     telemetry.API
}

func NewScraper(fetcher Fetcher, opts Options, tel telemetry.API) Scraper {
	assert.NotNil(fetcher)
	assert.NotNil(tel)
	return Scraper{
		fetcher: fetcher,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("session", tel),
	}
}

// Records logs in with creds and then lazily yields the product listing.
func (s Scraper) Records(ctx context.Context, creds supplier.Credentials) iter.Seq2[supplier.ProductRecord, error] {
	return func(yield func(supplier.ProductRecord, error) bool) {
		_, _, err := Login(ctx, s.fetcher, s.opts.LoginURL, creds, s.tel)
		if err != nil {
			yield(supplier.ProductRecord{}, err)
			return
		}
		extractor := listing.NewExtractor(s.fetcher, s.opts.Listing, s.tel)
		for record, err := range extractor.Records(ctx, s.opts.ProductsURL) {
			if !yield(record, err) {
				return
			}
		}
	}
}

// Scrape drains Records.
func (s Scraper) Scrape(ctx context.Context, creds supplier.Credentials) ([]supplier.ProductRecord, error) {
	return listing.Collect(s.Records(ctx, creds))
}
