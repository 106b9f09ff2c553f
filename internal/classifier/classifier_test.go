package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradePattern = `^(\w+)_(IRS|OIS|BS)_.*$`

func TestClassify(t *testing.T) {
	tests := []struct {
		filename string
		want     TypeID
		ok       bool
	}{
		{"TRADE_IRS_20240101.csv", 1, true},
		{"TRADE_OIS_20240101.csv", 2, true},
		{"TRADE_BS_20240101.csv", 3, true},
		{"TRADE_XYZ_20240101.csv", 0, false},
		{"IRS_20240101.csv", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := Classify(tt.filename, tradePattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_AnchorsAtStart(t *testing.T) {
	c, err := New(`(\w+?)_(IRS|OIS|BS)_`)
	require.NoError(t, err)

	id, ok := c.Classify("TRADE_OIS_20240101.csv")
	assert.True(t, ok)
	assert.Equal(t, TypeID(2), id)

	_, ok = c.Classify("-TRADE_OIS_20240101.csv")
	assert.False(t, ok)
}

func TestClassify_AnchorsEveryAlternative(t *testing.T) {
	pattern := `^X|(\w)(IRS)_`

	_, ok := Classify("zzzAIRS_20240101.csv", pattern)
	assert.False(t, ok)

	id, ok := Classify("AIRS_20240101.csv", pattern)
	assert.True(t, ok)
	assert.Equal(t, TypeID(1), id)
}

func TestClassify_KnownCodeOutsideSecondGroup(t *testing.T) {
	// The type code must come from group 2, not anywhere in the name.
	_, ok := Classify("IRS_TRADE_20240101.csv", tradePattern)
	assert.False(t, ok)
}

func TestClassify_PatternWithoutSecondGroup(t *testing.T) {
	_, ok := Classify("TRADE_IRS_20240101.csv", `^(\w+)\.csv$`)
	assert.False(t, ok)
}

func TestClassify_InvalidPattern(t *testing.T) {
	_, ok := Classify("TRADE_IRS_20240101.csv", `^(\w+`)
	assert.False(t, ok)

	_, err := New(`^(\w+`)
	assert.Error(t, err)
}
