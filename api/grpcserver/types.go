package grpcserver

import "hermes/domain/orderbook"

// Request and response messages for OrderService. They travel as
// hand-rolled protobuf via the wire package, so no generated code is
// involved; the codec maps each type to its encoder.

type PlaceOrderRequest struct {
	Order orderbook.Order
}

type PlaceOrderResponse struct {
	Status string
	Trades []orderbook.Trade
}

type CancelOrderRequest struct {
	Side  orderbook.Side
	Price int64
	UID   uint64
}

type CancelOrderResponse struct {
	Status string
	Found  bool
}

type BookRequest struct{}

type BookResponse struct {
	Depth orderbook.DepthUpdate
}
