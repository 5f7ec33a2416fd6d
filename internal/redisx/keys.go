package redisx

import "time"

const (
	// Reservation hash: resv:{reservation_id} -> {user_id, items, status, expires_at}
	KeyReservation = "resv:%s"

	// Advisory checkout hold: resv:hold:{user_id}:{product_id} -> reservation_id.
	// Existence of this key short-circuits a second concurrent checkout for the
	// same item within the TTL window.
	KeyReservationHold = "resv:hold:%s:%s"

	// Dedup for event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)
