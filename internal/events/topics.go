package events

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
)

// Task kinds consumed by the worker.
const (
	TaskFulfillmentNotify = "fulfillment-notify"
	TaskPointsAward       = "points-award"
	TaskPointsRefund      = "points-refund"
)

// DefaultRoutes maps each topic to the tasks it fans out to.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		TopicOrderCreated:   {TaskFulfillmentNotify, TaskPointsAward},
		TopicOrderCancelled: {TaskPointsRefund},
	}
}
