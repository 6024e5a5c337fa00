package redisx

import "time"

const (
	// Order snapshot (msgpack) under the bare order id: {order_id}
	KeyOrder = "%s"

	// Client-visible request status: request_status:{correlation_id} -> Pending|Retrying|Processed|Failed
	KeyRequestStatus = "request_status:%s"

	// Terminal outcome of a delivery, for redelivery dedup: dedup:{service}:{correlation_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLRequestStatus = 24 * time.Hour
	TTLDedup         = 48 * time.Hour
)
