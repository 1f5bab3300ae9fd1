package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spraynsniff/storefront/internal/domain"
	"github.com/spraynsniff/storefront/internal/metrics"
	"github.com/spraynsniff/storefront/internal/notify"
	"github.com/spraynsniff/storefront/internal/version"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *notify.Recorder) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &notify.Recorder{}
	client, err := New(srv.URL, append([]Option{WithNotifier(rec)}, opts...)...)
	require.NoError(t, err)
	return client, rec
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNew_DefaultsAndValidation(t *testing.T) {
	client, err := New("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, client.BaseURL())

	_, err = New("localhost:5000/api")
	require.Error(t, err)
}

func TestClient_GetProduct(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/products/p-1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"_id":      "p-1",
				"name":     "Oud Wood",
				"price":    25000.5,
				"stock":    3,
				"imageUrl": "https://cdn.example/oud.jpg",
			},
		})
	})

	product, err := client.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, "Oud Wood", product.Name)
	require.True(t, product.Price.Equal(decimal.RequireFromString("25000.5")))
	require.Equal(t, "https://cdn.example/oud.jpg", product.ImageURL)
}

func TestClient_SessionCookieOnlyOnSessionClient(t *testing.T) {
	var cookies []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookie)
		if err == nil {
			cookies = append(cookies, c.Value)
		} else {
			cookies = append(cookies, "")
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
	})

	ctx := context.Background()
	_, err := client.Session("abc").FeaturedProducts(ctx)
	require.NoError(t, err)
	_, err = client.Session("abc").Public().FeaturedProducts(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"abc", ""}, cookies)
}

func TestClient_UnauthorizedIsWarningOnly(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authorized"})
	})

	_, err := client.Me(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Empty(t, rec.All())
}

func TestClient_ClientErrorNotifiesWithBackendMessage(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/login") {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	_, err := client.Login(ctx, "a@b.c", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.IsClientError())
	require.Equal(t, "Invalid credentials", apiErr.Message)

	_, err = client.GetOrder(ctx, "missing")
	require.Error(t, err)

	all := rec.All()
	require.Len(t, all, 2)
	require.Equal(t, notify.LevelError, all[0].Level)
	require.Equal(t, "Invalid credentials", all[0].Message)
	require.Equal(t, "Request failed", all[1].Message)
}

func TestClient_ServerErrorIsNotNotified(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
	})

	_, err := client.ListCategories(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Empty(t, rec.All())
}

func TestClient_PublicClientDoesNotNotify(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad query"})
	})

	_, err := client.Public().SearchProducts(context.Background(), SearchQuery{Query: "oud"})
	require.Error(t, err)
	require.Empty(t, rec.All())
}

func TestClient_SearchProductsQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/products/search", r.URL.Path)
		require.Equal(t, "oud", r.URL.Query().Get("query"))
		require.Equal(t, "Unisex", r.URL.Query().Get("category"))
		require.False(t, r.URL.Query().Has("size"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"unexpected": true}})
	})

	products, err := client.SearchProducts(context.Background(), SearchQuery{Query: "oud", Category: "Unisex"})
	require.NoError(t, err)
	require.Empty(t, products)
}

func TestClient_ListProductsWithPagination(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "8", r.URL.Query().Get("limit"))
		require.Equal(t, "100000", r.URL.Query().Get("minPrice"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       []map[string]any{{"_id": "p1", "name": "A", "price": "150000"}},
			"pagination": map[string]any{"page": 1, "totalPages": 3},
		})
	})

	products, page, err := client.ListProducts(context.Background(), ProductQuery{
		Limit:    8,
		MinPrice: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, page)
	require.Equal(t, 3, page.TotalPages)
}

func TestClient_SyncCartBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/cart/sync", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))

		var body struct {
			Items []SyncItem `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []SyncItem{{Product: "p1", Quantity: 2}}, body.Items)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	_, err := client.SyncCart(context.Background(), []SyncItem{{Product: "p1", Quantity: 2}})
	require.NoError(t, err)
}

func TestClient_CheckoutAndFinalize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/orders/checkout":
			var req CheckoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.True(t, req.SaveAddress)
			require.Equal(t, "Lagos", req.DeliveryAddress.City)
			writeJSON(w, http.StatusCreated, map[string]any{
				"success": true,
				"data": map[string]any{
					"order":   map[string]any{"_id": "o-1", "total": 50000},
					"payment": map[string]any{"authorization_url": "https://pay.example/abc", "reference": "ref-1"},
				},
			})
		case "/api/v1/orders/finalize":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Payment verified"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	res, err := client.Checkout(ctx, CheckoutRequest{
		DeliveryAddress: DeliveryAddress{Street: "1 Marina", City: "Lagos", State: "LA"},
		Phone:           "+2348000000000",
		SaveAddress:     true,
	})
	require.NoError(t, err)
	require.Equal(t, "o-1", res.Order.ID)
	require.NotNil(t, res.Payment)
	require.Equal(t, "https://pay.example/abc", res.Payment.AuthorizationURL)

	fin, err := client.FinalizeOrder(ctx, "ref-1")
	require.NoError(t, err)
	require.True(t, fin.Success)
}

func TestClient_CreateProductMultipart(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Oud Wood", r.FormValue("name"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "oud.jpg", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "jpeg-bytes", string(data))

		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "created"})
	})

	env, err := client.CreateProduct(context.Background(), ProductForm{
		Fields:    map[string]string{"name": "Oud Wood", "price": "25000"},
		Image:     strings.NewReader("jpeg-bytes"),
		ImageName: "oud.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, "created", env.Message)
}

func TestClient_LoginReturnsSessionCookie(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "session-1"})
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    map[string]any{"id": "u1", "name": "Ada", "role": "user"},
		})
	})

	env, err := client.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	token, ok := env.SessionToken()
	require.True(t, ok)
	require.Equal(t, "session-1", token)
}

func TestClient_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCartMetricsWithRegisterer(reg)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/categories" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}, WithMetrics(m))

	ctx := context.Background()
	_, err := client.ListCategories(ctx)
	require.NoError(t, err)
	_, err = client.FeaturedProducts(ctx)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "storefront_backend_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.FeaturedProducts(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
	require.False(t, errors.Is(err, domain.ErrUnauthorized))
}
