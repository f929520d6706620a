package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{buyer_id}:{key} -> "pending" | response json
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cached status view: order_status:{order_id} -> json
	KeyOrderStatus = "order_status:%s"

	// Event processing dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
