package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const loginPage = `
<html><body>
	<form action="/login" method="post">
		<input type="hidden" name="__RequestVerificationToken" value="csrf-1">
		<input type="text" name="Email">
		<input type="password" name="Senha">
		<button type="submit">Entrar</button>
	</form>
</body></html>`

const orderPage = `
<html><body>
	<form id="form-carrinho" action="/pedido/finalizar" method="post">
		<input type="hidden" name="carrinho_token" value="cart-9">
		<input type="number" name="quantidade_x">
		<button type="submit">Finalizar</button>
	</form>
</body></html>`

type siteOptions struct {
	loginForm    bool
	orderForm    bool
	confirmation string
	failFinalize bool
}

type testSite struct {
	*httptest.Server
	mutex     sync.Mutex
	login     url.Values
	finalized url.Values
}

func (s *testSite) record(dst *url.Values, form url.Values) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	*dst = form
}

func newTestSite(t testing.TB, opts siteOptions) *testSite {
	site := &testSite{}
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !opts.loginForm {
			fmt.Fprint(w, `<html><body><p>Bem-vindo</p></body></html>`)
			return
		}
		fmt.Fprint(w, loginPage)
	})
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		site.record(&site.login, r.PostForm)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/pedidos", http.StatusFound)
	})
	r.Get("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		if !opts.orderForm {
			fmt.Fprint(w, `<html><body><form action="/busca"><input name="q"></form></body></html>`)
			return
		}
		fmt.Fprint(w, orderPage)
	})
	r.Post("/pedido/finalizar", func(w http.ResponseWriter, r *http.Request) {
		if opts.failFinalize {
			http.Error(w, "erro", http.StatusInternalServerError)
			return
		}
		if _, err := r.Cookie("sid"); err != nil {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		site.record(&site.finalized, r.PostForm)
		fmt.Fprint(w, opts.confirmation)
	})

	site.Server = httptest.NewServer(r)
	t.Cleanup(site.Close)
	return site
}

func newTestFlow(t testing.TB, site *testSite, opts Options) (Flow, *telemetry.RecordingAPI) {
	tel := &telemetry.RecordingAPI{}
	fetcher, err := fetch.New(fetch.Options{
		BaseURL:   site.URL,
		Timeout:   time.Second * 5,
		RateLimit: -1,
	}, tel)
	require.NoError(t, err)
	return NewFlow(fetcher, opts, tel), tel
}

var testCreds = supplier.Credentials{Username: "a", Password: "b"}

func TestRunPlacesOrder(t *testing.T) {
	site := newTestSite(t, siteOptions{
		loginForm:    true,
		orderForm:    true,
		confirmation: `<div class="alert"><p>Pedido enviado</p><span class="codigo-pedido"> PED-2024-0042 </span></div>`,
	})
	flow, _ := newTestFlow(t, site, Options{})

	result, err := flow.Run(context.Background(), Order{
		Credentials:     testCreds,
		ExternalOrderID: "77",
		Items: []supplier.OrderItem{
			{GTIN: "7891", Code: "A1", Quantity: 2},
			{GTIN: "7892", Code: "B2", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PED-2024-0042", result.ConfirmationCode())
	require.Equal(t, supplier.ORDER_PLACED, result.Status())
	require.False(t, result.Simulated())

	require.Equal(t, "a", site.login.Get("Email"))
	require.Equal(t, "b", site.login.Get("Senha"))
	require.Equal(t, "csrf-1", site.login.Get("__RequestVerificationToken"))

	require.Equal(t, url.Values{
		"carrinho_token": {"cart-9"},
		"quantidade_0":   {"2"},
		"gtin_0":         {"7891"},
		"codigo_0":       {"A1"},
		"quantidade_1":   {"1"},
		"gtin_1":         {"7892"},
		"codigo_1":       {"B2"},
	}, site.finalized)
}

func TestRunSynthesizesCode(t *testing.T) {
	cases := []struct {
		name       string
		site       siteOptions
		order      Order
		expected   string
		finalizing bool
	}{
		{
			name:     "no order form and no items",
			site:     siteOptions{loginForm: true},
			order:    Order{Credentials: testCreds, ExternalOrderID: "1234"},
			expected: "SERV-1234",
		},
		{
			name: "no order form with items",
			site: siteOptions{loginForm: true},
			order: Order{
				Credentials:     testCreds,
				ExternalOrderID: "1234",
				Items:           []supplier.OrderItem{{GTIN: "1", Quantity: 1}},
			},
			expected: "SERV-1234",
		},
		{
			name:     "order form but no items",
			site:     siteOptions{loginForm: true, orderForm: true},
			order:    Order{Credentials: testCreds, ExternalOrderID: "55"},
			expected: "SERV-55",
		},
		{
			name:     "no login form and no order id",
			site:     siteOptions{},
			order:    Order{Credentials: testCreds},
			expected: "SERV-CONF",
		},
		{
			name: "confirmation page without a code",
			site: siteOptions{
				loginForm:    true,
				orderForm:    true,
				confirmation: `<h1>PEDIDO RECEBIDO</h1><p>MENU</p>`,
			},
			order: Order{
				Credentials:     testCreds,
				ExternalOrderID: "9",
				Items:           []supplier.OrderItem{{GTIN: "1", Quantity: 3}},
			},
			expected:   "SERV-9",
			finalizing: true,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			site := newTestSite(t, test.site)
			flow, _ := newTestFlow(t, site, Options{})

			result, err := flow.Run(context.Background(), test.order)
			require.NoError(t, err)
			require.Equal(t, test.expected, result.ConfirmationCode())
			require.Equal(t, supplier.ORDER_PLACED, result.Status())
			require.True(t, result.Simulated())
			require.Equal(t, test.finalizing, site.finalized != nil)
		})
	}
}

func TestRunOrderURL(t *testing.T) {
	site := newTestSite(t, siteOptions{
		orderForm:    true,
		confirmation: `<table><tr><td>Pedido</td><td>ABC-123</td></tr></table>`,
	})
	flow, _ := newTestFlow(t, site, Options{OrderURL: "/pedidos"})

	// without a login form nothing sets the session cookie
	_, err := flow.Run(context.Background(), Order{
		Credentials:     testCreds,
		ExternalOrderID: "1",
		Items:           []supplier.OrderItem{{GTIN: "1", Quantity: 1}},
	})
	var netErr *supplier.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, http.StatusForbidden, netErr.Status)
}

func TestRunNetworkErrorIsFatal(t *testing.T) {
	site := newTestSite(t, siteOptions{loginForm: true, orderForm: true, failFinalize: true})
	flow, _ := newTestFlow(t, site, Options{})

	_, err := flow.Run(context.Background(), Order{
		Credentials:     testCreds,
		ExternalOrderID: "1",
		Items:           []supplier.OrderItem{{GTIN: "1", Quantity: 1}},
	})
	var netErr *supplier.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, http.StatusInternalServerError, netErr.Status)
}

func TestRunUnreachableSite(t *testing.T) {
	fetcher, err := fetch.New(fetch.Options{
		BaseURL:   "http://127.0.0.1:1",
		Timeout:   time.Second,
		RateLimit: -1,
	}, &telemetry.RecordingAPI{})
	require.NoError(t, err)
	flow := NewFlow(fetcher, Options{}, &telemetry.RecordingAPI{})

	_, err = flow.Run(context.Background(), Order{Credentials: testCreds, ExternalOrderID: "1"})
	var netErr *supplier.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFindConfirmationCode(t *testing.T) {
	cases := []struct {
		name     string
		html     string
		code     string
		selector string
	}{
		{
			name:     "order code class",
			html:     `<p>MENU</p><div class="box order-code">  OC-99812 </div>`,
			code:     "OC-99812",
			selector: "order-code-class",
		},
		{
			name:     "pedido numero label",
			html:     `<p>Pedido número <strong>2024001</strong></p>`,
			code:     "2024001",
			selector: "pedido-numero-text",
		},
		{
			name:     "sibling of label",
			html:     `<dl><dt>Nº do pedido</dt><dd>X7-4410</dd></dl>`,
			code:     "X7-4410",
			selector: "sibling-of-label",
		},
		{
			name:     "cell after pedido",
			html:     `<table><tr><td>Seu Pedido</td><td>ABCD-1</td></tr></table>`,
			code:     "ABCD-1",
			selector: "cell-after-pedido",
		},
		{
			name:     "class beats later selectors",
			html:     `<table><tr><td>Pedido</td><td>LATE-1</td></tr></table><b class="codigo-pedido">FIRST-2</b>`,
			code:     "FIRST-2",
			selector: "codigo-pedido-class",
		},
		{
			name: "labels without digits are not codes",
			html: `<table><tr><td>Pedido</td><td>CONFIRMADO</td></tr></table><span class="order-code">ABC</span>`,
		},
		{
			name: "lowercase is not a code",
			html: `<span class="codigo-pedido">ped-123</span>`,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			page, err := fetch.ParsePage("https://portal.example/", []byte(test.html))
			require.NoError(t, err)

			code, selector, ok := FindConfirmationCode(page.Doc)
			require.Equal(t, test.code != "", ok)
			require.Equal(t, test.code, code)
			require.Equal(t, test.selector, selector)
		})
	}
}

func TestIsConfirmationToken(t *testing.T) {
	require.True(t, IsConfirmationToken("PED-2024-0042"))
	require.True(t, IsConfirmationToken("1234"))
	require.False(t, IsConfirmationToken("123"))
	require.False(t, IsConfirmationToken("PEDIDO"))
	require.False(t, IsConfirmationToken("PED 123"))
	require.False(t, IsConfirmationToken(""))
}

func TestSyntheticCode(t *testing.T) {
	require.Equal(t, "SERV-1234", SyntheticCode("1234"))
	require.Equal(t, "SERV-CONF", SyntheticCode(""))
}
