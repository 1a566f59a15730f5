package grpcserver

import (
	"fmt"

	"hermes/api/wire"
)

// Codec marshals OrderService messages with the wire package. Install
// it on the server with grpc.ForceServerCodec and on clients with
// grpc.CallContentSubtype after registration.
type Codec struct{}

const codecName = "hermes"

func (Codec) Name() string { return codecName }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *PlaceOrderRequest:
		return wire.EncodePlace(m.Order), nil
	case *PlaceOrderResponse:
		return wire.EncodePlaceAck(m.Status, m.Trades), nil
	case *CancelOrderRequest:
		return wire.EncodeCancel(m.Side, m.Price, m.UID), nil
	case *CancelOrderResponse:
		return wire.EncodeCancelAck(m.Status, m.Found), nil
	case *BookRequest:
		return nil, nil
	case *BookResponse:
		return wire.EncodeDepth(m.Depth), nil
	}
	return nil, fmt.Errorf("grpcserver: cannot marshal %T", v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *PlaceOrderRequest:
		ord, err := wire.DecodePlace(data)
		if err != nil {
			return err
		}
		m.Order = ord
		return nil
	case *PlaceOrderResponse:
		status, trades, err := wire.DecodePlaceAck(data)
		if err != nil {
			return err
		}
		m.Status, m.Trades = status, trades
		return nil
	case *CancelOrderRequest:
		side, price, uid, err := wire.DecodeCancel(data)
		if err != nil {
			return err
		}
		m.Side, m.Price, m.UID = side, price, uid
		return nil
	case *CancelOrderResponse:
		status, found, err := wire.DecodeCancelAck(data)
		if err != nil {
			return err
		}
		m.Status, m.Found = status, found
		return nil
	case *BookRequest:
		return nil
	case *BookResponse:
		d, err := wire.DecodeDepth(data)
		if err != nil {
			return err
		}
		m.Depth = d
		return nil
	}
	return fmt.Errorf("grpcserver: cannot unmarshal into %T", v)
}
