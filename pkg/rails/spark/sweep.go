package spark

import (
	"context"
	"log"
	"time"
)

// sweepToTreasury consolidates every pin wallet's holdings into the
// treasury address: the whole sats balance above the dust threshold,
// plus every token held. Not on the payment-critical path; a failure
// sweeping one pin or one asset is logged and must not stop the rest.
func (o *Observer) sweepToTreasury() {
	if o.treasury == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, ps := range o.pins {
		if ps.wallet == nil {
			continue
		}
		bal, err := ps.wallet.Balance(ctx)
		if err != nil {
			log.Printf("Spark: sweep balance check for pin %d: %v", ps.cfg.Pin, err)
			continue
		}

		if bal.Sats > DustSats {
			if err := ps.wallet.TransferSats(ctx, o.treasury, bal.Sats); err != nil {
				log.Printf("Spark: failed to sweep %d sats from pin %d: %v", bal.Sats, ps.cfg.Pin, err)
			} else {
				log.Printf("Spark: swept %d sats from pin %d", bal.Sats, ps.cfg.Pin)
			}
		}

		for tokenID, tb := range bal.Tokens {
			if tb.Balance == nil || tb.Balance.Sign() <= 0 {
				continue
			}
			if err := ps.wallet.TransferTokens(ctx, o.treasury, tokenID, tb.Balance); err != nil {
				log.Printf("Spark: failed to sweep token %s from pin %d: %v", tokenID, ps.cfg.Pin, err)
			} else {
				log.Printf("Spark: swept %s of token %s from pin %d", tb.Balance.String(), tokenID, ps.cfg.Pin)
			}
		}
	}

	log.Printf("Spark: fund sweep complete")
}
