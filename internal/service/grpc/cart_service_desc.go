package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса корзин.
const ServiceName = "storefront.v1.CartService"

// Полные имена методов.
const (
	MethodGetCart     = "/" + ServiceName + "/GetCart"
	MethodAddItem     = "/" + ServiceName + "/AddItem"
	MethodRemoveItem  = "/" + ServiceName + "/RemoveItem"
	MethodSetQuantity = "/" + ServiceName + "/SetQuantity"
	MethodClearCart   = "/" + ServiceName + "/ClearCart"
)

// CartServiceServer — контракт сервиса корзин. Запросы и ответы передаются
// как google.protobuf.Struct, поэтому отдельная генерация кода не нужна.
type CartServiceServer interface {
	GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RemoveItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ClearCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv CartServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CartServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CartServiceDesc описывает сервис для grpc.Server.RegisterService.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unaryHandler(MethodGetCart, CartServiceServer.GetCart)},
		{MethodName: "AddItem", Handler: unaryHandler(MethodAddItem, CartServiceServer.AddItem)},
		{MethodName: "RemoveItem", Handler: unaryHandler(MethodRemoveItem, CartServiceServer.RemoveItem)},
		{MethodName: "SetQuantity", Handler: unaryHandler(MethodSetQuantity, CartServiceServer.SetQuantity)},
		{MethodName: "ClearCart", Handler: unaryHandler(MethodClearCart, CartServiceServer.ClearCart)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/cart.proto",
}

// RegisterCartServiceServer регистрирует реализацию на сервере.
func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

// CartServiceClient — клиент сервиса корзин.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCartServiceClient создаёт клиента поверх соединения.
func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

func (c *CartServiceClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) GetCart(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetCart, req, opts...)
}

func (c *CartServiceClient) AddItem(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAddItem, req, opts...)
}

func (c *CartServiceClient) RemoveItem(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRemoveItem, req, opts...)
}

func (c *CartServiceClient) SetQuantity(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSetQuantity, req, opts...)
}

func (c *CartServiceClient) ClearCart(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodClearCart, req, opts...)
}
