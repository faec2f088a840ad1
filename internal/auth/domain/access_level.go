package domain

import "fmt"

// AccessLevel is the closed set of user/site levels. Levels are totally
// ordered; gate checks compare ranks, never strings.
type AccessLevel string

const (
	LevelBasic    AccessLevel = "basic"
	LevelStandard AccessLevel = "standard"
	LevelPremium  AccessLevel = "premium"
	LevelAdmin    AccessLevel = "admin"
)

// AccessLevels lists all known levels in ascending rank order.
var AccessLevels = []AccessLevel{LevelBasic, LevelStandard, LevelPremium, LevelAdmin}

var levelRanks = map[AccessLevel]int{
	LevelBasic:    1,
	LevelStandard: 2,
	LevelPremium:  3,
	LevelAdmin:    4,
}

// ParseAccessLevel validates a level string at the boundary. Unknown values
// are rejected rather than silently defaulted.
func ParseAccessLevel(s string) (AccessLevel, error) {
	level := AccessLevel(s)
	if _, ok := levelRanks[level]; !ok {
		return "", fmt.Errorf("unknown access level %q", s)
	}
	return level, nil
}

// Rank returns the level's position in the total order. Unknown levels rank
// as 0, below every known level, so corrupted or stale values fail closed.
func (l AccessLevel) Rank() int {
	return levelRanks[l]
}

// Valid reports whether l is one of the four known levels.
func (l AccessLevel) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Satisfies reports whether a user at level l may access a resource
// requiring the given level.
func (l AccessLevel) Satisfies(required AccessLevel) bool {
	return l.Rank() >= required.Rank() && l.Rank() > 0
}

func (l AccessLevel) String() string { return string(l) }
