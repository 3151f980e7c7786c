package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/checkout/internal/adapter/handler/pb"
	"github.com/rl1809/checkout/internal/core/domain"
)

const errorDomain = "checkout"

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	orders OrderPlacer
	log    *zap.Logger
}

func NewGRPCHandler(orders OrderPlacer, log *zap.Logger) *GRPCHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCHandler{orders: orders, log: log}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *pb.PlaceOrderRequest) (*pb.PlaceOrderResponse, error) {
	items := make([]domain.RequestedProduct, len(req.GetProducts()))
	for i, p := range req.GetProducts() {
		if p == nil {
			return nil, status.Error(codes.InvalidArgument, "product entry is null")
		}
		items[i] = domain.RequestedProduct{ProductID: p.ProductId, Quantity: int(p.Quantity)}
	}

	order, err := h.orders.Execute(ctx, req.GetRequestId(), req.GetCustomerId(), items)
	if err != nil {
		return nil, h.toStatus(err)
	}

	resp := &pb.PlaceOrderResponse{
		OrderId:    order.ID,
		CustomerId: order.CustomerID,
		LineItems:  make([]*pb.OrderLineItem, len(order.LineItems)),
		CreatedAt:  order.CreatedAt.Format(time.RFC3339Nano),
	}
	for i, item := range order.LineItems {
		resp.LineItems[i] = &pb.OrderLineItem{
			ProductId: item.ProductID,
			Price:     item.Price.String(),
			Quantity:  int32(item.Quantity),
		}
	}
	return resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	kind := domain.KindOf(err)
	st := status.New(grpcCode(kind), publicMessage(err))
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(kind),
		Domain:   errorDomain,
		Metadata: errorMetadata(err),
	})
	if derr != nil {
		h.log.Warn("attach error details failed", zap.Error(derr))
		return st.Err()
	}
	return detailed.Err()
}

func grpcCode(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindCustomerNotFound, domain.KindProductNotFound:
		return codes.NotFound
	case domain.KindEmptyOrder, domain.KindInvalidQuantity, domain.KindDuplicateProduct:
		return codes.InvalidArgument
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindBusy:
		return codes.Unavailable
	case domain.KindCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}
