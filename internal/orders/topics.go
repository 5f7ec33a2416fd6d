package orders

const (
	TopicOrderSubmitted   = "order.submitted"
	TopicOrderMoved       = "order.moved"
	TopicRequestSubmitted = "order.request.submitted"
	TopicRequestDecided   = "order.request.decided"
	TopicTornMove         = "order.reconcile.torn"
)

// Partition key = order id so all events of one order keep their ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
