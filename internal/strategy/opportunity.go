package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"crossarb/pkg/types"
)

// Opportunity is a detected cross-venue price dislocation: buy at BuyVenue's
// best ask, sell at SellVenue's best bid. Immutable once created; discarded
// after the execution decision. Timestamp is the older of the two book
// timestamps, so age reasoning is conservative.
type Opportunity struct {
	ID            string           `json:"id"`
	Instrument    types.Instrument `json:"instrument"`
	BuyVenue      types.VenueID    `json:"buyVenue"`
	SellVenue     types.VenueID    `json:"sellVenue"`
	BuyPrice      float64          `json:"buyPrice"`
	SellPrice     float64          `json:"sellPrice"`
	Amount        float64          `json:"amount"`
	ProfitPercent float64          `json:"profitPercent"`
	ProfitAmount  float64          `json:"profitAmount"`
	BuyFee        float64          `json:"buyFee"`    // taker rate on the buy leg
	SellFee       float64          `json:"sellFee"`   // taker rate on the sell leg
	TotalFees     float64          `json:"totalFees"` // quote currency, for Amount
	Timestamp     time.Time        `json:"timestamp"`
}

// NewOpportunity creates an opportunity with taker-fee accounting.
// buyFee and sellFee are fractions of notional (0.001 = 0.1%).
func NewOpportunity(
	instrument types.Instrument,
	buyVenue types.VenueID,
	sellVenue types.VenueID,
	buyPrice float64,
	sellPrice float64,
	amount float64,
	buyFee float64,
	sellFee float64,
	timestamp time.Time,
) *Opportunity {
	perUnitNet := sellPrice - buyPrice - buyPrice*buyFee - sellPrice*sellFee

	return &Opportunity{
		ID:            uuid.New().String(),
		Instrument:    instrument,
		BuyVenue:      buyVenue,
		SellVenue:     sellVenue,
		BuyPrice:      buyPrice,
		SellPrice:     sellPrice,
		Amount:        amount,
		ProfitPercent: CalculateProfitPercent(buyPrice, sellPrice, buyFee, sellFee),
		ProfitAmount:  perUnitNet * amount,
		BuyFee:        buyFee,
		SellFee:       sellFee,
		TotalFees:     (buyPrice*buyFee + sellPrice*sellFee) * amount,
		Timestamp:     timestamp,
	}
}

// CalculateProfitPercent is the fee-adjusted per-unit profit relative to the
// buy price, in percent. Returns 0 for any non-positive input price.
func CalculateProfitPercent(buyPrice, sellPrice, buyFee, sellFee float64) float64 {
	if buyPrice <= 0 || sellPrice <= 0 {
		return 0
	}

	perUnitNet := sellPrice - buyPrice - buyPrice*buyFee - sellPrice*sellFee

	return perUnitNet / buyPrice * 100
}

// TradeKey identifies the in-flight trade this opportunity would become.
// At most one active trade per key exists at any instant.
func (o *Opportunity) TradeKey() string {
	return fmt.Sprintf("%s-%s-%s", o.Instrument, o.BuyVenue, o.SellVenue)
}

// String returns a human-readable representation of the opportunity.
func (o *Opportunity) String() string {
	return fmt.Sprintf(
		"Opportunity[%s] %s buy@%s=%.6f sell@%s=%.6f amount=%.4f profit=%.4f%% (%.6f)",
		o.ID[:8],
		o.Instrument,
		o.BuyVenue,
		o.BuyPrice,
		o.SellVenue,
		o.SellPrice,
		o.Amount,
		o.ProfitPercent,
		o.ProfitAmount,
	)
}
