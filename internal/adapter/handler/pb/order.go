// Package pb holds the checkout.OrderService messages and service
// descriptor. Messages travel as JSON through the codec registered below.
package pb

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	OrderService_ServiceName     = "checkout.OrderService"
	OrderService_PlaceOrder_Name = "/checkout.OrderService/PlaceOrder"
)

type RequestedProduct struct {
	ProductId string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type PlaceOrderRequest struct {
	RequestId  string              `json:"request_id,omitempty"`
	CustomerId string              `json:"customer_id"`
	Products   []*RequestedProduct `json:"products"`
}

func (r *PlaceOrderRequest) GetRequestId() string {
	if r != nil {
		return r.RequestId
	}
	return ""
}

func (r *PlaceOrderRequest) GetCustomerId() string {
	if r != nil {
		return r.CustomerId
	}
	return ""
}

func (r *PlaceOrderRequest) GetProducts() []*RequestedProduct {
	if r != nil {
		return r.Products
	}
	return nil
}

type OrderLineItem struct {
	ProductId string `json:"product_id"`
	Price     string `json:"price"`
	Quantity  int32  `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderId    string           `json:"order_id"`
	CustomerId string           `json:"customer_id"`
	LineItems  []*OrderLineItem `json:"line_items"`
	CreatedAt  string           `json:"created_at"`
}

// OrderServiceServer is the server API for checkout.OrderService.
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
	mustEmbedUnimplementedOrderServiceServer()
}

type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PlaceOrder not implemented")
}

func (UnimplementedOrderServiceServer) mustEmbedUnimplementedOrderServiceServer() {}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderService_ServiceDesc, srv)
}

func _OrderService_PlaceOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: OrderService_PlaceOrder_Name,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*PlaceOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var OrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderService_ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PlaceOrder",
			Handler:    _OrderService_PlaceOrder_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/order.proto",
}

// OrderServiceClient is the client API for checkout.OrderService.
type OrderServiceClient interface {
	PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc}
}

func (c *orderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	out := new(PlaceOrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, OrderService_PlaceOrder_Name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CodecName is the content subtype clients must select.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
