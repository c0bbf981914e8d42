package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "omnipos.inventory.v1.ProductViewService"

// ProductViewServer is the server API for the product view service. Every
// message is a google.protobuf.Struct shaped like the backend's JSON.
type ProductViewServer interface {
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCategories(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ProductViewServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProductViewServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ProductViewServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the gRPC method path, e.g. for conn.Invoke.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var ProductViewServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProductViewServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListProducts", ProductViewServer.ListProducts),
		unary("GetProduct", ProductViewServer.GetProduct),
		unary("ToggleStock", ProductViewServer.ToggleStock),
		unary("DeleteProduct", ProductViewServer.DeleteProduct),
		unary("CreateProduct", ProductViewServer.CreateProduct),
		unary("UpdateProduct", ProductViewServer.UpdateProduct),
		unary("ListCategories", ProductViewServer.ListCategories),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/inventory/v1/product_view.proto",
}

func RegisterProductViewServer(s grpc.ServiceRegistrar, srv ProductViewServer) {
	s.RegisterService(&ProductViewServiceDesc, srv)
}
