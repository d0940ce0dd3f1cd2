package enums

type RewardType string

const (
	RewardTypeSuperLike RewardType = "super_like"
	RewardTypeBoost     RewardType = "boost"
	RewardTypePoints    RewardType = "points"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeSuperLike, RewardTypeBoost, RewardTypePoints:
		return true
	default:
		return false
	}
}
