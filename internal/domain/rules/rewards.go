package rules

import (
	"hash/fnv"
	"strconv"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
)

type RewardSpec struct {
	Type  enums.RewardType
	Value int
}

var rewardTable = []RewardSpec{
	{Type: enums.RewardTypePoints, Value: 10},
	{Type: enums.RewardTypePoints, Value: 25},
	{Type: enums.RewardTypeSuperLike, Value: 1},
	{Type: enums.RewardTypePoints, Value: 50},
	{Type: enums.RewardTypeBoost, Value: 1},
}

// RewardForDay picks the reward for a (user, day) pair. The choice is
// deterministic so that racing creators compute the same row.
func RewardForDay(userID int64, dayKey string) RewardSpec {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(userID, 10)))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(dayKey))
	return rewardTable[h.Sum32()%uint32(len(rewardTable))]
}
