package power

import (
	"context"

	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/mathx"
)

// better orders candidates: priority, then offered power, then the source
// already in contract, then the lower endpoint id. Arrival order never
// matters.
func (s *Service) better(a, b int) bool {
	pa, pb := &s.ports[a], &s.ports[b]
	if pa.priority != pb.priority {
		return pa.priority > pb.priority
	}
	wa, wb := pa.offer.MaxPowerMw(), pb.offer.MaxPowerMw()
	if wa != wb {
		return wa > wb
	}
	if a == s.cur || b == s.cur {
		return a == s.cur
	}
	return pa.id < pb.id
}

func (s *Service) eligible(pt *port) bool {
	return pt.state != types.StateDetached &&
		pt.hasOffer &&
		!pt.failed &&
		pt.offer.MaxPowerMw() >= s.cfg.MinPowerMw
}

func (s *Service) selectBest() int {
	best := -1
	for i := 0; i < s.n; i++ {
		if !s.eligible(&s.ports[i]) {
			continue
		}
		if best < 0 || s.better(i, best) {
			best = i
		}
	}
	return best
}

// evaluate settles on a source. Every pass that does not settle marks one
// source failed, so the loop is bounded by the table size.
func (s *Service) evaluate(ctx context.Context) {
	defer s.updateUnconstrained()
	for pass := 0; pass <= s.n; pass++ {
		if ctx.Err() != nil {
			return
		}
		best, cur := s.selectBest(), s.cur
		if best < 0 {
			if cur >= 0 {
				// The active offer dropped below what we can use.
				id := s.ports[cur].id
				s.dropCurrent()
				s.publish(types.PowerLimit{Source: id, State: types.StateDetected})
			}
			return
		}

		if best == cur {
			if s.ports[cur].state != types.StateRenegotiating {
				return
			}
			if s.negotiate(ctx, cur) {
				s.publishLimit()
				return
			}
			if ctx.Err() != nil {
				return
			}
			// The old contract is void; consumers must not keep drawing on it.
			id := s.ports[cur].id
			s.dropCurrent()
			s.publish(types.PowerLimit{Source: id, State: types.StateDetected})
			continue
		}

		// Hand over without a gap: the old contract stays in force until
		// the new one is agreed.
		if cur >= 0 {
			s.transition(&s.ports[cur], types.StateRenegotiating)
		}
		if s.negotiate(ctx, best) {
			if cur >= 0 {
				s.release(ctx, cur)
			}
			s.cur = best
			s.publishLimit()
			return
		}
		if ctx.Err() != nil {
			return
		}
		if cur >= 0 && !s.ports[cur].stale {
			s.transition(&s.ports[cur], types.StateContracted)
		}
	}
}

// negotiate asks source i for its offer, bounded by the deadline and retry
// count. On success the source is Contracted. When retries run out the
// source is marked failed and NegotiationFailed is published.
func (s *Service) negotiate(ctx context.Context, i int) bool {
	pt := &s.ports[i]
	want := s.request(pt)
	current := i == s.cur

	attempts := 0
	for attempts <= s.cfg.RetryLimit {
		attempts++
		if !current {
			s.transition(pt, types.StateNegotiating)
		}
		rctx, cancel := context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		resp, err := s.conn.Request(rctx, pt.id, types.NegotiateRequest{Want: want})
		cancel()
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			r, ok := resp.Payload.(types.NegotiateResponse)
			if ok && !r.Accepted.IsZero() {
				pt.contract = types.PowerCapability{
					VoltageMv: r.Accepted.VoltageMv,
					CurrentMa: mathx.Min(r.Accepted.CurrentMa, want.CurrentMa),
				}
				pt.stale = false
				s.transition(pt, types.StateContracted)
				s.log.Info("contract", "port", pt.id, "mv", pt.contract.VoltageMv, "ma", pt.contract.CurrentMa, "attempts", attempts)
				return true
			}
			err = errcode.InvalidPayload
		}
		s.log.Warn("negotiation attempt failed", "port", pt.id, "attempt", attempts, "err", err)
		if !current {
			s.transition(pt, types.StateDetected)
		}
	}

	pt.failed = true
	s.log.Error("negotiation failed", "port", pt.id, "attempts", attempts)
	s.publish(types.NegotiationFailed{Source: pt.id, Attempts: uint8(attempts)})
	return false
}

// capFor is the current bound at level l, 0 when unbounded.
func (s *Service) capFor(l types.ThermalLevel) uint16 {
	c := s.cfg.MaxCurrentMa
	if t := s.cfg.ThermalCapMa[l]; t > 0 && (c == 0 || t < c) {
		c = t
	}
	return c
}

// request is what the arbiter asks pt for: its offer within the cap.
func (s *Service) request(pt *port) types.PowerCapability {
	want := pt.offer
	if c := s.capFor(s.level); c > 0 {
		want.CurrentMa = mathx.Min(want.CurrentMa, c)
	}
	return want
}

func (s *Service) dropCurrent() {
	if s.cur < 0 {
		return
	}
	pt := &s.ports[s.cur]
	pt.contract = types.PowerCapability{}
	pt.stale = false
	s.transition(pt, types.StateDetected)
	s.cur = -1
}

func (s *Service) release(ctx context.Context, i int) {
	pt := &s.ports[i]
	pt.contract = types.PowerCapability{}
	pt.stale = false
	s.transition(pt, types.StateDetected)
	if err := s.conn.Send(ctx, pt.id, types.ReleaseContract{}); err != nil {
		s.log.Warn("release not delivered", "port", pt.id, "err", err)
	}
}

func (s *Service) publishLimit() {
	c := &s.ports[s.cur]
	s.publish(types.PowerLimit{Source: c.id, State: types.StateContracted, Limit: c.contract})
}

func (s *Service) updateUnconstrained() {
	u := types.Unconstrained{}
	if s.cur >= 0 {
		u.Unconstrained = s.ports[s.cur].flags.Unconstrained
	}
	for i := 0; i < s.n; i++ {
		pt := &s.ports[i]
		if pt.state != types.StateDetached && pt.hasOffer && pt.flags.Unconstrained {
			u.Available++
		}
	}
	if u == s.unc {
		return
	}
	s.unc = u
	s.publish(u)
}
