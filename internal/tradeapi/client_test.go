package tradeapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/tradeapi/tradeapitest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestClient(t testing.TB) (*tradeapi.Client, *tradeapitest.Server) {
	fake, server := tradeapitest.NewTestServer(t)
	client := tradeapi.New(tradeapi.Options{BaseURL: server.URL + "/"}, &telemetry.RecordingAPI{})
	return client, fake
}

func TestSignupAndAuthenticate(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Signup(ctx, "api-user", "short")
	require.True(t, tradeapi.IsStatus(err, http.StatusUnprocessableEntity))

	res, err := client.Signup(ctx, "api-user", "long-enough-password")
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"User created"}`, string(res))

	token, err := client.Authenticate(ctx, "api-user", "long-enough-password")
	require.NoError(t, err)
	require.Regexp(t, `^mock_.{20}$`, token)

	_, err = client.Authenticate(ctx, "api-user", "wrong-password")
	var statusErr *tradeapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Status)
	require.Contains(t, statusErr.Body, "Invalid credentials")
}

func TestSubmitProducts(t *testing.T) {
	client, fake := newTestClient(t)
	fake.AddUser("api-user", "password123")
	ctx := context.Background()

	token, err := client.Authenticate(ctx, "api-user", "password123")
	require.NoError(t, err)

	products := []supplier.ProductRecord{
		{GTIN: "7891", Code: "A1", Description: "Dipirona", FactoryPrice: 10.5, Stock: 12},
		{GTIN: "7892", Code: "B2", Description: "Paracetamol"},
	}
	res, err := client.SubmitProducts(ctx, token, products)
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"Produtos recebidos","recebidos":2}`, string(res))

	if diff := cmp.Diff(products, fake.Products()); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}

	_, err = client.SubmitProducts(ctx, "bogus", products)
	require.True(t, tradeapi.IsStatus(err, http.StatusUnauthorized))
}

func TestProductWireFormat(t *testing.T) {
	encoded, err := json.Marshal(supplier.ProductRecord{
		GTIN:         "1",
		Code:         "c",
		Description:  "d",
		FactoryPrice: 10.5,
		Stock:        3,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"gtin":"1","codigo":"c","descricao":"d","preco_fabrica":10.5,"estoque":3}`, string(encoded))
}

func TestOrderRoundTrip(t *testing.T) {
	client, fake := newTestClient(t)
	fake.AddUser("api-user", "password123")
	ctx := context.Background()

	token, err := client.Authenticate(ctx, "api-user", "password123")
	require.NoError(t, err)

	created, raw, err := client.CreateOrder(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "1", created.ID.String())
	require.Nil(t, created.SupplierCode)
	require.NotEmpty(t, created.Items)
	require.Contains(t, string(raw), `"itens"`)
	for _, item := range created.Items {
		require.Positive(t, item.Quantity)
	}

	res, err := client.PatchOrder(ctx, token, created.ID.String(), "SERV-1", supplier.ORDER_PLACED)
	require.NoError(t, err)
	require.Contains(t, string(res), `"codigo_fornecedor":"SERV-1"`)

	order, ok := fake.Order(1)
	require.True(t, ok)
	require.Equal(t, "SERV-1", *order.SupplierCode)
	require.Equal(t, "pedido_realizado", *order.Status)

	_, err = client.PatchOrder(ctx, token, "999", "SERV-999", supplier.ORDER_PLACED)
	require.True(t, tradeapi.IsStatus(err, http.StatusNotFound))

	_, err = client.PatchOrder(ctx, token, "abc", "SERV-abc", supplier.ORDER_PLACED)
	require.True(t, tradeapi.IsStatus(err, http.StatusUnprocessableEntity))
}

func TestHealthcheck(t *testing.T) {
	client, fake := newTestClient(t)
	require.NoError(t, client.Healthcheck(context.Background()))
	require.Equal(t, 1, fake.Calls("GET /healthcheck"))

	unreachable := tradeapi.New(tradeapi.Options{BaseURL: "http://127.0.0.1:1"}, &telemetry.RecordingAPI{})
	require.Error(t, unreachable.Healthcheck(context.Background()))
}
