package progression

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNicknameLength is the platform limit on display names, in characters.
const MaxNicknameLength = 32

var levelTagPattern = regexp.MustCompile(`\s*\[ Lv.*?\]`)

// TierTable maps level ranges to role ids. Levels up to Bounds[i] get
// RoleIDs[i]; anything above the last bound gets the last role.
type TierTable struct {
	Bounds  []int
	RoleIDs []string
}

// DefaultTierBounds are the upper level bounds of the first four tiers.
var DefaultTierBounds = []int{24, 49, 74, 98}

// NewTierTable pairs the default bounds with roleIDs, which must hold one more
// entry than there are bounds.
func NewTierTable(roleIDs []string) (TierTable, error) {
	if len(roleIDs) != len(DefaultTierBounds)+1 {
		return TierTable{}, fmt.Errorf("tier table needs %d role ids, got %d", len(DefaultTierBounds)+1, len(roleIDs))
	}
	return TierTable{Bounds: DefaultTierBounds, RoleIDs: roleIDs}, nil
}

// RoleFor returns the role id for level.
func (t TierTable) RoleFor(level int) string {
	for i, bound := range t.Bounds {
		if level <= bound {
			return t.RoleIDs[i]
		}
	}
	return t.RoleIDs[len(t.RoleIDs)-1]
}

// IsTierRole reports whether roleID belongs to the tier table.
func (t TierTable) IsTierRole(roleID string) bool {
	for _, id := range t.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Nickname strips any existing level tag from base and appends the tag for
// level, truncated to MaxNicknameLength characters.
func Nickname(base string, level int) string {
	clean := strings.TrimSpace(levelTagPattern.ReplaceAllString(base, ""))
	nick := clean + fmt.Sprintf(" [ Lv . %d ]", level)

	runes := []rune(nick)
	if len(runes) > MaxNicknameLength {
		runes = runes[:MaxNicknameLength]
	}
	return string(runes)
}
