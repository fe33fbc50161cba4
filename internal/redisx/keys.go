package redisx

import "time"

const (
	// Session cart: cart:session:{session_id} -> JSON array of cart items
	KeyCartSession = "cart:session:%s"

	// Cache status order: order_status:{order_id} -> {"order_id": "...", "status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{subject}, e.g. {order_id}:placed
	KeyDedup = "dedup:%s:%s"

	// Orders waiting for a confirmation call, oldest first
	KeyConfirmQueue = "confirm:queue"
)

var (
	TTLCart        = 7 * 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
