package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// PrizeEntry is one slot group in a lottery's prize pool.
type PrizeEntry struct {
	Type     enums.PrizeType   `json:"type"`
	Value    decimal.Decimal   `json:"value"`
	Quantity int               `json:"quantity"`
	Rarity   enums.PrizeRarity `json:"rarity"`
}

// PrizePool is the ordered prize list stored as jsonb on lotteries. Order is
// preserved exactly as configured at creation.
type PrizePool []PrizeEntry

// Value implements driver.Valuer for the jsonb column.
func (p PrizePool) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for the jsonb column.
func (p *PrizePool) Scan(value interface{}) error {
	if value == nil {
		*p = PrizePool{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("prize pool: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*p = PrizePool{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// TotalQuantity sums the slot quantities across all entries.
func (p PrizePool) TotalQuantity() int {
	total := 0
	for _, entry := range p {
		total += entry.Quantity
	}
	return total
}

// Validate checks entry shape; quantities must be positive and every type and
// rarity must be canonical.
func (p PrizePool) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("prize pool must contain at least one entry")
	}
	for i, entry := range p {
		if !entry.Type.IsValid() {
			return fmt.Errorf("prize pool entry %d: invalid prize type %q", i, entry.Type)
		}
		if !entry.Rarity.IsValid() {
			return fmt.Errorf("prize pool entry %d: invalid prize rarity %q", i, entry.Rarity)
		}
		if entry.Quantity <= 0 {
			return fmt.Errorf("prize pool entry %d: quantity must be positive", i)
		}
		if entry.Value.IsNegative() {
			return fmt.Errorf("prize pool entry %d: value must not be negative", i)
		}
	}
	return nil
}

// ByDescendingRarity returns the pool indices ordered highest rarity first,
// stable over the configured order so equal tiers keep their placement.
func (p PrizePool) ByDescendingRarity() []int {
	indices := make([]int, len(p))
	for i := range p {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return p[indices[a]].Rarity.Rank() > p[indices[b]].Rarity.Rank()
	})
	return indices
}

// DistributionByRarity counts slot quantities grouped by rarity tier.
func (p PrizePool) DistributionByRarity() map[enums.PrizeRarity]int {
	dist := make(map[enums.PrizeRarity]int, len(p))
	for _, entry := range p {
		dist[entry.Rarity] += entry.Quantity
	}
	return dist
}
