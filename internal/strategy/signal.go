// Package strategy holds the pure signal math. Nothing here touches the
// store, the bus, or the chain.
package strategy

import (
	"fmt"

	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/price"
)

type Action string

const (
	ActionNone      Action = "NONE"
	ActionAddTrade  Action = "ADD_TRADE"
	ActionDropTrade Action = "DROP_TRADE"
)

// Decision is one agent's evaluation against the current price.
type Decision struct {
	Action Action
	// Band boundaries around the agent's moving average.
	Lower, Upper float64
	// Proximity is how close the agent is to triggering, as a ratio that
	// approaches 1 from below and crosses it at the trigger. Observability
	// only.
	Proximity float64
}

// Evaluate compares the price against the agent's band. A BUY agent adds
// when the price sinks to lower = ma/gain; a SELL agent adds when it rises
// to upper = ma*gain. An agent holding an open trade whose signal has gone
// away drops it instead.
func Evaluate(agent *models.Agent, smas []float64, currentPrice float64) (Decision, error) {
	idx := price.BucketIndex(agent.MADuration)
	if idx < 0 || idx >= len(smas) {
		return Decision{}, fmt.Errorf("agent %s: ma duration %d has no bucket (have %d)",
			agent.AgentAddress, agent.MADuration, len(smas))
	}
	ma := smas[idx]
	if ma <= 0 || currentPrice <= 0 {
		return Decision{}, fmt.Errorf("agent %s: non-positive price inputs (ma=%g price=%g)",
			agent.AgentAddress, ma, currentPrice)
	}

	d := Decision{
		Action: ActionNone,
		Lower:  ma / agent.MAInitGain,
		Upper:  ma * agent.MAInitGain,
	}
	hasOpen := agent.OpenTradeID != ""

	switch agent.Side {
	case models.SideBuy:
		d.Proximity = d.Lower / currentPrice
		if currentPrice <= d.Lower && !hasOpen {
			d.Action = ActionAddTrade
		} else if currentPrice > d.Lower && hasOpen {
			d.Action = ActionDropTrade
		}
	case models.SideSell:
		d.Proximity = currentPrice / d.Upper
		if currentPrice >= d.Upper && !hasOpen {
			d.Action = ActionAddTrade
		} else if currentPrice < d.Upper && hasOpen {
			d.Action = ActionDropTrade
		}
	default:
		return Decision{}, fmt.Errorf("agent %s: unknown side %q", agent.AgentAddress, agent.Side)
	}

	return d, nil
}

// BestProximity tracks the agent closest to triggering across one cycle.
type BestProximity struct {
	AgentAddress string
	Side         models.Side
	Ratio        float64
}

// Observe keeps the larger ratio.
func (b *BestProximity) Observe(agent *models.Agent, d Decision) {
	if d.Proximity > b.Ratio {
		b.AgentAddress = agent.AgentAddress
		b.Side = agent.Side
		b.Ratio = d.Proximity
	}
}
