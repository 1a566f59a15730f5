// Package grpcserver adapts the sequencer to gRPC. Messages use the
// wire package's encoding through a custom codec, so the service runs
// without generated stubs.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"hermes/domain/orderbook"
	"hermes/service"
)

// Engine is the slice of the sequencer the server needs.
type Engine interface {
	PlaceWait(ctx context.Context, ord orderbook.Order) (service.Result, error)
	CancelWait(ctx context.Context, side orderbook.Side, price int64, uid uint64) (service.Result, error)
	Depths() orderbook.DepthUpdate
}

// Server implements OrderService.
type Server struct {
	engine Engine
	log    *zap.Logger
}

func NewServer(engine Engine, log *zap.Logger) *Server {
	return &Server{engine: engine, log: log}
}

func (s *Server) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	res, err := s.engine.PlaceWait(ctx, req.Order)
	if err != nil {
		return nil, toStatus(err)
	}

	s.log.Debug("place",
		zap.Uint64("uid", req.Order.UID),
		zap.Stringer("side", req.Order.Side),
		zap.Int64("price", req.Order.Price),
		zap.Int64("qty", req.Order.Qty),
		zap.Int("trades", len(res.Trades)))

	return &PlaceOrderResponse{Status: "ok", Trades: res.Trades}, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	res, err := s.engine.CancelWait(ctx, req.Side, req.Price, req.UID)
	if err != nil {
		return nil, toStatus(err)
	}

	s.log.Debug("cancel",
		zap.Uint64("uid", req.UID),
		zap.Bool("found", res.Found))

	return &CancelOrderResponse{Status: "ok", Found: res.Found}, nil
}

// GetBook serves the cached depth snapshot; it never touches the
// matching goroutine.
func (s *Server) GetBook(_ context.Context, _ *BookRequest) (*BookResponse, error) {
	return &BookResponse{Depth: s.engine.Depths()}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, orderbook.ErrInvalidOrder),
		errors.Is(err, orderbook.ErrUnsupportedFlag):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// Register attaches the service to grpcServer. The server must be
// constructed with grpc.ForceServerCodec(Codec{}).
func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "hermes.v1.OrderService",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "CancelOrder", Handler: cancelOrderHandler},
		{MethodName: "GetBook", Handler: getBookHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hermes/v1/order_service",
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hermes.v1.OrderService/PlaceOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).PlaceOrder(ctx, req.(*PlaceOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).CancelOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hermes.v1.OrderService/CancelOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).CancelOrder(ctx, req.(*CancelOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetBook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hermes.v1.OrderService/GetBook"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).GetBook(ctx, req.(*BookRequest))
	}
	return interceptor(ctx, in, info, handler)
}
