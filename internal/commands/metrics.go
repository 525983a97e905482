package commands

import "github.com/prometheus/client_golang/prometheus"

var commandsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mudae_commands_total",
		Help: "Chat commands handled, by command and result.",
	},
	[]string{"command", "result"},
)

var reactionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mudae_reactions_total",
		Help: "Emoji reactions processed, by acknowledgment outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(commandsTotal, reactionsTotal)
}
