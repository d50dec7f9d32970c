package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(
		commandsReceivedTotal,
		adminCommandsTotal,
		callbacksTotal,
		linkDeliveriesTotal,
		messageDeletionsTotal,
		registryLinks,
		pendingDeletions,
	)
}

var (
	commandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Incoming bot commands by name.",
		},
		[]string{"command"},
	)

	adminCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_commands_total",
			Help: "Admin-only commands and callbacks by authorization result.",
		},
		[]string{"command", "result"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_callbacks_total",
			Help: "Inline button callbacks by route.",
		},
		[]string{"route"},
	)

	linkDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_deliveries_total",
			Help: "Link messages requested through the menu by result.",
		},
		[]string{"result"},
	)

	messageDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_deletions_total",
			Help: "Scheduled message deletions by result.",
		},
		[]string{"result"},
	)

	registryLinks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_links",
			Help: "Number of links currently in the registry.",
		},
	)

	pendingDeletions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_message_deletions",
			Help: "Messages waiting for their scheduled deletion.",
		},
	)
)

func IncCommand(command string) {
	commandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

// IncAdminCommand считает обращения к админским командам, result: authorized | unauthorized
func IncAdminCommand(command, result string) {
	adminCommandsTotal.WithLabelValues(norm(command), result).Inc()
}

func IncCallback(route string) {
	callbacksTotal.WithLabelValues(route).Inc()
}

// IncLinkDelivery result: sent | not_found | failed
func IncLinkDelivery(result string) {
	linkDeliveriesTotal.WithLabelValues(result).Inc()
}

// IncDeletion result: deleted | failed | cancelled | dropped
func IncDeletion(result string) {
	messageDeletionsTotal.WithLabelValues(result).Inc()
}

func SetRegistryLinks(n int) {
	registryLinks.Set(float64(n))
}

func SetPendingDeletions(n int) {
	pendingDeletions.Set(float64(n))
}

// norm приводит имя команды к виду "/name", чтобы не плодить метки
func norm(command string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return "unknown"
	}
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	return command
}
