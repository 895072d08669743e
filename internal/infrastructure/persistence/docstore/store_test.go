package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"exp_data/123", false},
		{"hidden_quest_data/q1", false},
		{"", true},
		{"exp_data/", true},
		{"/exp_data", true},
		{"a//b", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrefixAndJoin(t *testing.T) {
	assert.Equal(t, "exp_data/", Prefix("exp_data"))
	assert.Equal(t, "exp_data/", Prefix("exp_data/"))
	assert.Equal(t, "mission_data/42", Join(MissionsCollection, "42"))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `exp\_data/%`, LikePattern("exp_data/"))
	assert.Equal(t, `a\%b\\c%`, LikePattern(`a%b\c`))
}
