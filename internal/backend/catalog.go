package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Product — товар каталога в представлении API.
type Product struct {
	ID            string          `json:"_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category,omitempty"`
	Concentration string          `json:"concentration,omitempty"`
	SizeML        int             `json:"sizeML,omitempty"`
	Stock         int             `json:"stock"`
	ImageURL      string          `json:"imageUrl,omitempty"`
}

// ProductQuery — параметры постраничного списка товаров.
type ProductQuery struct {
	Page     int
	Limit    int
	MinPrice decimal.Decimal
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.MinPrice.IsPositive() {
		v.Set("minPrice", q.MinPrice.String())
	}
	return v
}

// SearchQuery — фильтры поиска товаров; пустые поля не передаются.
type SearchQuery struct {
	Query    string
	Category string
	Size     string
	MinPrice string
	MaxPrice string
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("query", q.Query)
	set("category", q.Category)
	set("size", q.Size)
	set("minPrice", q.MinPrice)
	set("maxPrice", q.MaxPrice)
	return v
}

// ProductForm — multipart-форма создания или изменения товара.
type ProductForm struct {
	Fields map[string]string
	// Image необязателен при изменении товара.
	Image     io.Reader
	ImageName string
}

func (f ProductForm) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, f.Fields[k]); err != nil {
			return nil, "", err
		}
	}

	if f.Image != nil {
		name := f.ImageName
		if name == "" {
			name = "image"
		}
		part, err := w.CreateFormFile("image", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Image); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// Category — категория каталога.
type Category struct {
	ID          string `json:"_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListProducts возвращает страницу каталога.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]Product, *Pagination, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/products",
		endpoint: "GET /api/v1/products",
		query:    q.values(),
	})
	if err != nil {
		return nil, nil, err
	}
	products, err := decodeList[Product](env)
	return products, env.Pagination, err
}

// FeaturedProducts возвращает избранные товары для главной страницы.
func (c *Client) FeaturedProducts(ctx context.Context) ([]Product, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/products/featured",
		endpoint: "GET /api/v1/products/featured",
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Product](env)
}

// GetProduct возвращает товар по идентификатору.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/products/" + url.PathEscape(id),
		endpoint: "GET /api/v1/products/{id}",
	})
	if err != nil {
		return Product{}, err
	}
	var p Product
	if err := env.DecodeData(&p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// SearchProducts ищет товары по фильтрам.
func (c *Client) SearchProducts(ctx context.Context, q SearchQuery) ([]Product, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/products/search",
		endpoint: "GET /api/v1/products/search",
		query:    q.values(),
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Product](env)
}

// CreateProduct создаёт товар (админка).
func (c *Client) CreateProduct(ctx context.Context, form ProductForm) (*Envelope, error) {
	return c.sendProductForm(ctx, http.MethodPost, "/api/v1/products", "POST /api/v1/products", form)
}

// UpdateProduct изменяет товар (админка).
func (c *Client) UpdateProduct(ctx context.Context, id string, form ProductForm) (*Envelope, error) {
	return c.sendProductForm(ctx, http.MethodPut, "/api/v1/products/"+url.PathEscape(id), "PUT /api/v1/products/{id}", form)
}

// DeleteProduct удаляет товар (админка).
func (c *Client) DeleteProduct(ctx context.Context, id string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/v1/products/" + url.PathEscape(id),
		endpoint: "DELETE /api/v1/products/{id}",
	})
}

func (c *Client) sendProductForm(ctx context.Context, method, path, endpoint string, form ProductForm) (*Envelope, error) {
	body, contentType, err := form.encode()
	if err != nil {
		return nil, fmt.Errorf("%s: encode form: %w", endpoint, err)
	}
	return c.do(ctx, call{
		method:      method,
		path:        path,
		endpoint:    endpoint,
		body:        body,
		contentType: contentType,
	})
}

// ListCategories возвращает категории каталога.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	env, err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/v1/categories",
		endpoint: "GET /api/v1/categories",
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Category](env)
}

// CreateCategory создаёт категорию.
func (c *Client) CreateCategory(ctx context.Context, category Category) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/v1/categories",
		endpoint: "POST /api/v1/categories",
		body:     category,
	})
}

// UpdateCategory изменяет категорию.
func (c *Client) UpdateCategory(ctx context.Context, id string, category Category) (*Envelope, error) {
	category.ID = ""
	return c.do(ctx, call{
		method:   http.MethodPut,
		path:     "/api/v1/categories/" + url.PathEscape(id),
		endpoint: "PUT /api/v1/categories/{id}",
		body:     category,
	})
}

// DeleteCategory удаляет категорию.
func (c *Client) DeleteCategory(ctx context.Context, id string) (*Envelope, error) {
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/api/v1/categories/" + url.PathEscape(id),
		endpoint: "DELETE /api/v1/categories/{id}",
	})
}

// decodeList разбирает data как массив; отсутствующий или не-массивный data даёт пустой список.
func decodeList[T any](env *Envelope) ([]T, error) {
	if env == nil || len(env.Data) == 0 || env.Data[0] != '[' {
		return []T{}, nil
	}
	var items []T
	if err := env.DecodeData(&items); err != nil {
		return nil, err
	}
	return items, nil
}
