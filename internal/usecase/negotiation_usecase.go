package usecase

import (
	"math"

	"vendora/internal/domain/entity"
)

// The negotiation engine is pure: it computes a decision from the current
// negotiation record and the buyer's message, and the driver persists the
// session and sends the reply.

type NegotiationAction string

const (
	ActionCounter  NegotiationAction = "counter"   // propose/hold a counter price
	ActionAccept   NegotiationAction = "accept"    // proceed to purchase at AcceptPrice
	ActionReprompt NegotiationAction = "re_prompt" // ask for a concrete number again
)

type ReplyKind string

const (
	ReplyProposeCounter  ReplyKind = "propose_counter"
	ReplyPushBack        ReplyKind = "push_back"
	ReplyReprompt        ReplyKind = "re_prompt"
	ReplyAccept          ReplyKind = "accept"
	ReplyFinalConcession ReplyKind = "final_concession"
	ReplyHoldFirm        ReplyKind = "hold_firm"
	ReplyFixedPrice      ReplyKind = "fixed_price"
)

// BuyerSignal is the engine's view of one buyer message: a numeric offer
// (Present=false when the text carried no number) and whether the text reads
// as ready-to-pay.
type BuyerSignal struct {
	Offer   int64
	Present bool
	Accept  bool
}

type NegotiationDecision struct {
	Action      NegotiationAction
	Next        entity.Negotiation
	AcceptPrice int64
	ReplyKind   ReplyKind

	// Escalate marks the session for vendor attention (escalate policy);
	// the protocol itself is unchanged.
	Escalate bool
}

// FloorAboveMin lifts a price onto the safety buffer above the protected
// floor: max(price, floor + max(round(floor*0.05), 500)). Every counter and
// every accepted price passes through here, which is the floor invariant.
func FloorAboveMin(price, floor int64) int64 {
	buffer := int64(math.Round(float64(floor) * 0.05))
	if buffer < 500 {
		buffer = 500
	}
	minimum := floor + buffer
	if price > minimum {
		return price
	}
	return minimum
}

func roundHalf(a, b int64) int64 {
	return int64(math.Round(float64(a+b) / 2))
}

// Negotiate runs one round of the haggling protocol. neg is nil on the first
// negotiate signal for an item.
func Negotiate(neg *entity.Negotiation, signal BuyerSignal, price, floor int64, policy entity.NegotiationPolicy) NegotiationDecision {
	if policy == entity.PolicyFixed {
		return negotiateFixed(neg, signal, price)
	}

	decision := negotiateAuto(neg, signal, price, floor)
	if policy == entity.PolicyEscalate {
		decision.Escalate = true
	}
	return decision
}

func negotiateFixed(neg *entity.Negotiation, signal BuyerSignal, price int64) NegotiationDecision {
	round := 0
	if neg != nil {
		round = neg.Round
	}

	if signal.Accept || (signal.Present && signal.Offer >= price) {
		return NegotiationDecision{
			Action:      ActionAccept,
			AcceptPrice: price,
			ReplyKind:   ReplyAccept,
		}
	}

	return NegotiationDecision{
		Action:    ActionCounter,
		Next:      entity.Negotiation{Round: round + 1, CounterPrice: price},
		ReplyKind: ReplyFixedPrice,
	}
}

func negotiateAuto(neg *entity.Negotiation, signal BuyerSignal, price, floor int64) NegotiationDecision {
	if neg == nil || neg.Round == 0 {
		return openingRound(signal, price, floor)
	}
	if neg.Round == 1 {
		return firstReply(neg, signal, price, floor)
	}
	return lateReply(neg, signal, floor)
}

// openingRound computes the initial counter at 40% of the price-floor gap.
func openingRound(signal BuyerSignal, price, floor int64) NegotiationDecision {
	counter := FloorAboveMin(floor+int64(math.Round(float64(price-floor)*0.4)), floor)

	if !signal.Present {
		return NegotiationDecision{
			Action:    ActionCounter,
			Next:      entity.Negotiation{Round: 1, CounterPrice: counter},
			ReplyKind: ReplyProposeCounter,
		}
	}

	// A generous opening offer gets one push-back toward the list price.
	if signal.Offer >= counter {
		pushed := roundHalf(signal.Offer, price)
		if pushed < counter {
			pushed = counter
		}
		return NegotiationDecision{
			Action:    ActionCounter,
			Next:      entity.Negotiation{Round: 1, CounterPrice: pushed},
			ReplyKind: ReplyPushBack,
		}
	}

	return NegotiationDecision{
		Action:    ActionCounter,
		Next:      entity.Negotiation{Round: 1, CounterPrice: counter},
		ReplyKind: ReplyProposeCounter,
	}
}

func firstReply(neg *entity.Negotiation, signal BuyerSignal, price, floor int64) NegotiationDecision {
	counter := neg.CounterPrice

	if signal.Accept {
		return NegotiationDecision{
			Action:      ActionAccept,
			AcceptPrice: FloorAboveMin(counter, floor),
			ReplyKind:   ReplyAccept,
		}
	}

	if !signal.Present {
		return NegotiationDecision{
			Action:    ActionReprompt,
			Next:      *neg,
			ReplyKind: ReplyReprompt,
		}
	}

	if signal.Offer >= counter {
		return NegotiationDecision{
			Action:      ActionAccept,
			AcceptPrice: FloorAboveMin(counter, floor),
			ReplyKind:   ReplyAccept,
		}
	}

	bounded := signal.Offer
	if bounded < floor {
		bounded = floor
	}
	newCounter := FloorAboveMin(roundHalf(counter, bounded), floor)

	return NegotiationDecision{
		Action:    ActionCounter,
		Next:      entity.Negotiation{Round: 2, CounterPrice: newCounter},
		ReplyKind: ReplyProposeCounter,
	}
}

// lateReply handles round >= 2: accept, concede down to the buffered floor,
// or hold firm. There is no round cap; a persistent buyer cycles here at the
// firm price.
func lateReply(neg *entity.Negotiation, signal BuyerSignal, floor int64) NegotiationDecision {
	counter := neg.CounterPrice

	if signal.Accept || (signal.Present && signal.Offer >= counter) {
		return NegotiationDecision{
			Action:      ActionAccept,
			AcceptPrice: FloorAboveMin(counter, floor),
			ReplyKind:   ReplyAccept,
		}
	}

	if signal.Present && signal.Offer >= floor {
		return NegotiationDecision{
			Action:      ActionAccept,
			AcceptPrice: FloorAboveMin(signal.Offer, floor),
			ReplyKind:   ReplyFinalConcession,
		}
	}

	return NegotiationDecision{
		Action:    ActionCounter,
		Next:      entity.Negotiation{Round: neg.Round + 1, CounterPrice: FloorAboveMin(floor, floor)},
		ReplyKind: ReplyHoldFirm,
	}
}
