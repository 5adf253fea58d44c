package ipc

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	endpointsCreatedTotal   metric.Int64Counter
	endpointsClosedTotal    metric.Int64Counter
	messagesSentTotal       metric.Int64Counter
	messagesReceivedTotal   metric.Int64Counter
	messagesDiscardedTotal  metric.Int64Counter
	sendFailuresTotal       metric.Int64Counter
	blockedReceiversCurrent metric.Int64UpDownCounter
)

func init() {
	m := otel.Meter("kernel-ipc/ipc")

	endpointsCreatedTotal, _ = m.Int64Counter("ipc_endpoints_created_total",
		metric.WithDescription("Total endpoints created"))
	endpointsClosedTotal, _ = m.Int64Counter("ipc_endpoints_closed_total",
		metric.WithDescription("Total endpoints closed"))
	messagesSentTotal, _ = m.Int64Counter("ipc_messages_sent_total",
		metric.WithDescription("Total messages accepted by Send"))
	messagesReceivedTotal, _ = m.Int64Counter("ipc_messages_received_total",
		metric.WithDescription("Total messages handed to receivers"))
	messagesDiscardedTotal, _ = m.Int64Counter("ipc_messages_discarded_total",
		metric.WithDescription("Total queued messages dropped by Close"))
	sendFailuresTotal, _ = m.Int64Counter("ipc_send_failures_total",
		metric.WithDescription("Total sends to a missing endpoint"))
	blockedReceiversCurrent, _ = m.Int64UpDownCounter("ipc_blocked_receivers",
		metric.WithDescription("Threads currently suspended in a blocking receive"))
}
