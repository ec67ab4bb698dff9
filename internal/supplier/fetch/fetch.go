// Package fetch issues requests against the supplier portal and hands back
// parsed documents. One Fetcher is one login session: its cookie jar is never
// shared with another job.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/lib/htmlutil"
	"supplierbot/lib/restyutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	report_fetcher_fetch = "fetcher.fetch"
	report_fetcher_parse = "fetcher.parse"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var tracer = otel.Tracer("supplierbot/supplier/fetch")

type Options struct {
	// BaseURL is what relative targets passed to Fetch are resolved against.
	BaseURL string
	// Timeout applies to every single request, defaults to 30 seconds.
	Timeout time.Duration
	// RateLimit is the maximum amount of requests per second, defaults to 2.
	// A negative value disables rate limiting.
	RateLimit float64
	// MaxRedirects defaults to 10.
	MaxRedirects int
	// AllowOtherHosts lets redirects leave the host of BaseURL, by default
	// they are refused.
	AllowOtherHosts  bool
	BypassCloudflare bool
	UserAgent        string
	// Output receives a dump of every exchange when set, for debugging.
	Output restyutil.InstrumentOutput
}

// Page is a fetched and parsed document.
type Page struct {
	// URL is the final url of the response after following redirects.
	URL    *url.URL
	Status int
	Doc    *goquery.Document
}

// Resolve resolves a link found on the page against the page's final url.
func (p Page) Resolve(href string) *url.URL {
	return htmlutil.ResolveURL(p.URL, href)
}

type Fetcher struct {
	baseUrl *url.URL
	http    *resty.Client
	tel     telemetry.API
}

func New(opts Options, tel telemetry.API) (*Fetcher, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("supplier_fetch", tel)

	baseUrl, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !baseUrl.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 2
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.BypassCloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetTimeout(opts.Timeout)

	policies := []any{resty.FlexibleRedirectPolicy(opts.MaxRedirects)}
	if !opts.AllowOtherHosts {
		policies = append(policies, resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	}
	client.SetRedirectPolicy(policies...)

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)
	restyutil.DumpExchanges(client, opts.Output)

	return &Fetcher{
		baseUrl: baseUrl,
		http:    client,
		tel:     tel,
	}, nil
}

// BaseURL returns a copy of the url relative targets are resolved against.
func (f *Fetcher) BaseURL() *url.URL {
	u := *f.baseUrl
	return &u
}

// Get fetches target, which may be relative to the base url.
func (f *Fetcher) Get(ctx context.Context, target string) (Page, error) {
	return f.Fetch(ctx, http.MethodGet, target, nil)
}

// Fetch issues a single request and parses the response as html. form is sent
// url encoded in the body for methods other than GET, and as the query string
// for GET. Statuses outside of 2xx and 3xx are returned as a
// *supplier.NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, method, target string, form url.Values) (Page, error) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	endpoint := htmlutil.ResolveURL(f.baseUrl, target)
	if endpoint == nil {
		endpoint = f.BaseURL()
	}

	ctx, span := tracer.Start(ctx, "Fetcher.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", method),
		attribute.String("url", endpoint.String()),
	)

	req := f.http.R().SetContext(ctx)
	if len(form) > 0 {
		if method == http.MethodGet {
			query := endpoint.Query()
			for k, values := range form {
				for _, v := range values {
					query.Add(k, v)
				}
			}
			endpoint.RawQuery = query.Encode()
		} else {
			req.SetFormDataFromValues(form)
		}
	}

	res, err := req.Execute(method, endpoint.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		f.tel.ReportWarning(report_fetcher_fetch, err, method, endpoint.String())
		return Page{}, &supplier.NetworkError{
			Method: method,
			URL:    endpoint.String(),
			Err:    err,
		}
	}

	status := res.StatusCode()
	if status < 200 || status >= 400 {
		span.SetStatus(codes.Error, res.Status())
		f.tel.ReportWarning(report_fetcher_fetch, fmt.Errorf("unexpected status %d", status), method, endpoint.String())
		return Page{}, &supplier.NetworkError{
			Method: method,
			URL:    endpoint.String(),
			Status: status,
			Err:    fmt.Errorf("unexpected status: %s", res.Status()),
		}
	}

	finalUrl := endpoint
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		finalUrl = res.RawResponse.Request.URL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		f.tel.ReportBroken(report_fetcher_parse, err, finalUrl.String())
		return Page{}, fmt.Errorf("parse %s: %w", finalUrl, err)
	}
	doc.Url = finalUrl

	return Page{
		URL:    finalUrl,
		Status: status,
		Doc:    doc,
	}, nil
}

// ParsePage builds a Page out of raw html, it is how documents that did not
// come over the network (fixtures, cached pages) enter the extractors.
func ParsePage(pageUrl string, contents []byte) (Page, error) {
	parsed, err := url.Parse(pageUrl)
	if err != nil {
		return Page{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(contents))
	if err != nil {
		return Page{}, err
	}
	doc.Url = parsed
	return Page{URL: parsed, Status: http.StatusOK, Doc: doc}, nil
}
