package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"5.4.1", "5.4.1", 0},
		{"5.4", "5.4.0.0", 0},
		{"5.4.1.2", "5.4.1.10", -1},
		{"5.5.0", "5.4.9.9", 1},
		{"1.0.010", "1.0.9", 1},
		{"v2.0", "2.0", 0},
		{"2.0-beta", "2.0-alpha", 1},
		{"", "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a))
		})
	}
}

func TestValidVersion(t *testing.T) {
	for _, v := range []string{"1", "5.4.1.2", "2.0-beta1"} {
		assert.True(t, ValidVersion(v), v)
	}
	for _, v := range []string{"", "1..2", "1.0.", "1.0 beta", "1.0_2"} {
		assert.False(t, ValidVersion(v), v)
	}
}

func TestDependencySatisfiedBy(t *testing.T) {
	d := Dependency{ID: "CDev-Core", MinVersion: "5.4.1"}
	assert.True(t, d.SatisfiedBy("5.4.1"))
	assert.True(t, d.SatisfiedBy("5.5"))
	assert.False(t, d.SatisfiedBy("5.4.0.9"))
	assert.True(t, Dependency{ID: "CDev-Core"}.SatisfiedBy("0.1"))
}
