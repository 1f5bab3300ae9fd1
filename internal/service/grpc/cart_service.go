package grpcsvc

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/domain"
)

// Carts — операции над корзинами, которые публикует gRPC API.
type Carts interface {
	View(ctx context.Context, cartID string) (cart.View, error)
	Add(ctx context.Context, cartID string, line domain.CartLine) (cart.Change, error)
	Remove(ctx context.Context, cartID, productID string) (cart.Change, error)
	SetQuantity(ctx context.Context, cartID, productID string, quantity int) (cart.Change, error)
	Clear(ctx context.Context, cartID string) (cart.Change, error)
}

// CartService реализует storefront.v1.CartService поверх сервиса корзин.
type CartService struct {
	carts  Carts
	logger *log.Entry
}

var _ CartServiceServer = (*CartService)(nil)

// NewCartService конструирует сервис с зависимостями.
func NewCartService(carts Carts, logger *log.Entry) *CartService {
	if logger == nil {
		logger = log.New().WithField("component", "cart-grpc")
	}
	return &CartService{carts: carts, logger: logger}
}

// GetCart возвращает позиции, сумму и количество единиц корзины.
func (s *CartService) GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cartID, err := requiredString(req, "cart_id")
	if err != nil {
		return nil, err
	}
	view, err := s.carts.View(ctx, cartID)
	if err != nil {
		return nil, s.mapError(err, "GetCart")
	}
	return toProtoView(view, nil)
}

// AddItem добавляет позицию; повторный product_id суммирует количество.
func (s *CartService) AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cartID, err := requiredString(req, "cart_id")
	if err != nil {
		return nil, err
	}
	productID, err := requiredString(req, "product_id")
	if err != nil {
		return nil, err
	}
	price, err := decimalField(req, "price")
	if err != nil {
		return nil, err
	}
	quantity, ok, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}
	if !ok {
		quantity = 1
	}

	change, err := s.carts.Add(ctx, cartID, domain.CartLine{
		ProductID: productID,
		Name:      stringField(req, "name"),
		Price:     price,
		ImageURL:  stringField(req, "image_url"),
		Quantity:  quantity,
	})
	return s.changeResponse(change, err, "AddItem")
}

// RemoveItem удаляет позицию; отсутствие товара не ошибка.
func (s *CartService) RemoveItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cartID, err := requiredString(req, "cart_id")
	if err != nil {
		return nil, err
	}
	productID, err := requiredString(req, "product_id")
	if err != nil {
		return nil, err
	}
	change, err := s.carts.Remove(ctx, cartID, productID)
	return s.changeResponse(change, err, "RemoveItem")
}

// SetQuantity перезаписывает количество как есть, включая ноль и отрицательные значения.
func (s *CartService) SetQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cartID, err := requiredString(req, "cart_id")
	if err != nil {
		return nil, err
	}
	productID, err := requiredString(req, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, ok, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "quantity is required")
	}
	change, err := s.carts.SetQuantity(ctx, cartID, productID, quantity)
	return s.changeResponse(change, err, "SetQuantity")
}

// ClearCart очищает корзину.
func (s *CartService) ClearCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cartID, err := requiredString(req, "cart_id")
	if err != nil {
		return nil, err
	}
	change, err := s.carts.Clear(ctx, cartID)
	return s.changeResponse(change, err, "ClearCart")
}

// changeResponse отдаёт состояние после мутации. Ошибка записи снапшота
// не откатывает изменение и передаётся в поле warning.
func (s *CartService) changeResponse(change cart.Change, err error, operation string) (*structpb.Struct, error) {
	if err != nil && change.View.CartID == "" {
		return nil, s.mapError(err, operation)
	}
	extra := map[string]any{
		"changed": change.Changed,
		"merged":  change.Merged,
	}
	if err != nil {
		s.logger.WithError(err).WithField("operation", operation).Warn("cart changed but snapshot was not saved")
		extra["warning"] = err.Error()
	}
	return toProtoView(change.View, extra)
}

func (s *CartService) mapError(err error, operation string) error {
	switch {
	case errors.Is(err, domain.ErrCartIDRequired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("cart operation failed")
		return status.Error(codes.Internal, "cart operation failed")
	}
}

func toProtoView(view cart.View, extra map[string]any) (*structpb.Struct, error) {
	lines := make([]any, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, map[string]any{
			"product_id": line.ProductID,
			"name":       line.Name,
			"price":      line.Price.String(),
			"image_url":  line.ImageURL,
			"quantity":   line.Quantity,
			"subtotal":   line.Subtotal().String(),
		})
	}

	fields := map[string]any{
		"cart_id": view.CartID,
		"lines":   lines,
		"total":   view.Total.String(),
		"count":   view.Count,
	}
	for k, v := range extra {
		fields[k] = v
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode cart: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request is required")
	}
	value := stringField(req, key)
	if value == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return value, nil
}

// intField читает целое число; ok=false, если поле не передано.
func intField(req *structpb.Struct, key string) (int, bool, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int(n), true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
}

// decimalField принимает цену числом или строкой; отсутствие поля даёт ноль.
func decimalField(req *structpb.Struct, key string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return decimal.Zero, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is not a decimal: %v", key, err)
		}
		return d, nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	default:
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s must be a number or a string", key)
	}
}
