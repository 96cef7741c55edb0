package enums

import "fmt"

// PrizeRarity maps to the prize_rarity_enum enum in Postgres.
type PrizeRarity string

const (
	PrizeRarityCommon    PrizeRarity = "common"
	PrizeRarityRare      PrizeRarity = "rare"
	PrizeRarityEpic      PrizeRarity = "epic"
	PrizeRarityLegendary PrizeRarity = "legendary"
)

var validPrizeRarities = []PrizeRarity{
	PrizeRarityCommon,
	PrizeRarityRare,
	PrizeRarityEpic,
	PrizeRarityLegendary,
}

// IsValid reports whether the value matches the canonical prize rarity enum.
func (r PrizeRarity) IsValid() bool {
	for _, candidate := range validPrizeRarities {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParsePrizeRarity converts raw input into PrizeRarity.
func ParsePrizeRarity(value string) (PrizeRarity, error) {
	for _, candidate := range validPrizeRarities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid prize rarity %q", value)
}

// Rank orders rarities for draw assignment, highest first. Unknown
// rarities sink to the bottom.
func (r PrizeRarity) Rank() int {
	switch r {
	case PrizeRarityLegendary:
		return 4
	case PrizeRarityEpic:
		return 3
	case PrizeRarityRare:
		return 2
	case PrizeRarityCommon:
		return 1
	default:
		return 0
	}
}

// PrizeType maps to the prize_type_enum enum in Postgres.
type PrizeType string

const (
	PrizeTypeVoucher PrizeType = "voucher"
	PrizeTypeToken   PrizeType = "token"
)

var validPrizeTypes = []PrizeType{
	PrizeTypeVoucher,
	PrizeTypeToken,
}

// IsValid reports whether the value matches the canonical prize type enum.
func (p PrizeType) IsValid() bool {
	for _, candidate := range validPrizeTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePrizeType converts raw input into PrizeType.
func ParsePrizeType(value string) (PrizeType, error) {
	for _, candidate := range validPrizeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid prize type %q", value)
}
