package commission

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

// Item is the slice of an order line the split needs.
type Item struct {
	ID        uuid.UUID
	FarmID    uuid.UUID
	ProductID uuid.UUID
	Subtotal  decimal.Decimal
}

// FarmShare is one farm's part of an order. Amount + Commission == Subtotal.
type FarmShare struct {
	FarmID     uuid.UUID
	Subtotal   decimal.Decimal
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Items      []Item
}

// Splitter partitions order lines into farmer amounts and platform commission
// at a fixed rate.
type Splitter struct {
	rate decimal.Decimal
}

func NewSplitter(rate decimal.Decimal) (*Splitter, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.New("commission rate must be in [0, 1)")
	}
	return &Splitter{rate: rate}, nil
}

func (s *Splitter) Rate() decimal.Decimal {
	return s.rate
}

// SplitByFarm groups items by farm. Per-item commission accumulates unrounded;
// each farm's commission is rounded once and the farmer amount is the
// remainder, so nothing is gained or lost.
func (s *Splitter) SplitByFarm(items []Item) map[uuid.UUID]*FarmShare {
	shares := make(map[uuid.UUID]*FarmShare)
	raw := make(map[uuid.UUID]decimal.Decimal)
	for _, item := range items {
		share, ok := shares[item.FarmID]
		if !ok {
			share = &FarmShare{FarmID: item.FarmID}
			shares[item.FarmID] = share
		}
		share.Subtotal = share.Subtotal.Add(item.Subtotal)
		share.Items = append(share.Items, item)
		raw[item.FarmID] = raw[item.FarmID].Add(item.Subtotal.Mul(s.rate))
	}
	for farmID, share := range shares {
		share.Commission = money.Round(raw[farmID])
		share.Amount = share.Subtotal.Sub(share.Commission)
	}
	return shares
}

// Ordered returns the shares sorted by farm id, for deterministic writes.
func Ordered(shares map[uuid.UUID]*FarmShare) []*FarmShare {
	out := make([]*FarmShare, 0, len(shares))
	for _, share := range shares {
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FarmID.String() < out[j].FarmID.String()
	})
	return out
}
