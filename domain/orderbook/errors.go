package orderbook

import "errors"

var (
	// ErrInvalidOrder rejects orders with a non-positive quantity, or
	// a non-positive price on a limit order. Rejected orders never
	// touch the book.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrUnsupportedFlag rejects all-or-none orders. The book cannot
	// honor the flag, so it must not silently fill them partially.
	ErrUnsupportedFlag = errors.New("unsupported order flag")
)
