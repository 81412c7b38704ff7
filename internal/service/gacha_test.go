package service

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGachaPickAt(t *testing.T) {
	cases := []struct {
		draw float64
		want string
	}{
		{0, "banner_sakura"},
		{29.9, "banner_sakura"},
		{30, "banner_sakura"},
		{30.1, "frame_violet"},
		{45, "frame_violet"},
		{60.5, "title_petal_wanderer"},
		{89, "emote_bloom"},
		{96, "aura_midnight"},
		{99.999, "aura_midnight"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultGachaTable.PickAt(tc.draw).Key, "draw=%v", tc.draw)
	}
}

func TestGachaDistribution(t *testing.T) {
	const pulls = 100_000
	rng := rand.New(rand.NewPCG(42, 7))
	total := float64(DefaultGachaTable.TotalWeight())
	require.Equal(t, 100.0, total)

	counts := map[string]int{}
	for i := 0; i < pulls; i++ {
		counts[DefaultGachaTable.Pick(rng).Key]++
	}

	for _, r := range DefaultGachaTable {
		expected := float64(r.Weight) / total
		got := float64(counts[r.Key]) / pulls
		assert.InDelta(t, expected, got, 0.02, r.Key)
	}
}
