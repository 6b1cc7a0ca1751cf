package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *RuntimeStore {
	return NewRuntimeStore(RuntimeConfig{
		MinDiscountPercentage: 80,
		ProductKeywords:       []string{"iphone"},
		ScrapeInterval:        30 * time.Second,
		Destinations:          []string{"111@c.us"},
		TargetURL:             "https://roobai.com/",
	})
}

func TestUpdateDiscount(t *testing.T) {
	s := newTestStore()

	res := s.Update(KeyMinDiscount, float64(85))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 85, s.Snapshot().MinDiscountPercentage)
	assert.Equal(t, 85, res.Config.MinDiscountPercentage)

	res = s.Update(KeyMinDiscount, "60")
	require.True(t, res.Success)
	assert.Equal(t, 60, s.Snapshot().MinDiscountPercentage)

	for _, bad := range []interface{}{float64(101), float64(-1), "abc", true, nil} {
		res = s.Update(KeyMinDiscount, bad)
		assert.False(t, res.Success, "value %v", bad)
	}
	assert.Equal(t, 60, s.Snapshot().MinDiscountPercentage)
}

func TestUpdateScrapeInterval(t *testing.T) {
	s := newTestStore()

	res := s.Update(KeyScrapeInterval, float64(4999))
	assert.False(t, res.Success)
	assert.Equal(t, 30*time.Second, s.Snapshot().ScrapeInterval)

	res = s.Update(KeyScrapeInterval, float64(5000))
	assert.True(t, res.Success)
	assert.Equal(t, 5*time.Second, s.Snapshot().ScrapeInterval)

	// Values that would overflow a time.Duration are rejected, not wrapped
	for _, huge := range []interface{}{float64(18446744078710), json.Number("18446744078710"), "18446744078710", float64(1e300)} {
		res = s.Update(KeyScrapeInterval, huge)
		assert.False(t, res.Success, "value %v", huge)
	}
	assert.Equal(t, 5*time.Second, s.Snapshot().ScrapeInterval)

	res = s.Update(KeyScrapeInterval, json.Number("9223372036854"))
	assert.True(t, res.Success)
}

func TestUpdateLists(t *testing.T) {
	s := newTestStore()

	res := s.Update(KeyProductKeywords, "tv, , laptop ")
	require.True(t, res.Success)
	assert.Equal(t, []string{"tv", "laptop"}, s.Snapshot().ProductKeywords)

	res = s.Update(KeyProductKeywords, []interface{}{" watch ", ""})
	require.True(t, res.Success)
	assert.Equal(t, []string{"watch"}, s.Snapshot().ProductKeywords)

	res = s.Update(KeyProductKeywords, float64(3))
	assert.False(t, res.Success)

	// Destinations may not become empty
	res = s.Update(KeyDestinations, " , ")
	assert.False(t, res.Success)
	assert.Equal(t, []string{"111@c.us"}, s.Snapshot().Destinations)

	res = s.Update(KeyDestinationAlias, []interface{}{"a", "b"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"a", "b"}, s.Snapshot().Destinations)
}

func TestUpdateTargetURLAndDebug(t *testing.T) {
	s := newTestStore()

	assert.False(t, s.Update(KeyTargetURL, "roobai.com").Success)
	assert.True(t, s.Update(KeyTargetURL, " https://example.com/ ").Success)
	assert.Equal(t, "https://example.com/", s.Snapshot().TargetURL)

	assert.True(t, s.Update(KeyDebugMode, "1").Success)
	assert.True(t, s.Snapshot().DebugMode)
	assert.True(t, s.Update(KeyDebugMode, "yes").Success)
	assert.False(t, s.Snapshot().DebugMode)
	assert.True(t, s.Update(KeyDebugMode, true).Success)
	assert.True(t, s.Snapshot().DebugMode)
}

func TestUpdateUnknownKey(t *testing.T) {
	s := newTestStore()
	before := s.Snapshot()

	res := s.Update("FOO", 1)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown config key")
	assert.Equal(t, before, s.Snapshot())
}

func TestUpdateBatchPartialFailure(t *testing.T) {
	s := newTestStore()

	res := s.UpdateBatch(map[string]interface{}{
		KeyMinDiscount:    float64(50),
		KeyScrapeInterval: float64(1000),
	})
	assert.True(t, res.Success)
	assert.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors, KeyScrapeInterval)
	assert.Equal(t, 50, s.Snapshot().MinDiscountPercentage)
	assert.Equal(t, 30*time.Second, s.Snapshot().ScrapeInterval)

	res = s.UpdateBatch(map[string]interface{}{"NOPE": 1})
	assert.False(t, res.Success)

	res = s.UpdateBatch(map[string]interface{}{})
	assert.True(t, res.Success)
}

func TestUpdateBatchRejectsDestinationAlias(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := newTestStore()
		res := s.UpdateBatch(map[string]interface{}{
			KeyDestinations:     "ops@c.us",
			KeyDestinationAlias: "legacy@c.us",
			KeyMinDiscount:      float64(70),
		})

		assert.True(t, res.Success)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[KeyDestinationAlias], "conflicts with")
		assert.Equal(t, []string{"ops@c.us"}, s.Snapshot().Destinations)
	}

	// The alias alone is still accepted
	s := newTestStore()
	res := s.UpdateBatch(map[string]interface{}{KeyDestinationAlias: "legacy@c.us"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"legacy@c.us"}, s.Snapshot().Destinations)
}

func TestResetRestoresDefaults(t *testing.T) {
	s := newTestStore()
	s.Update(KeyMinDiscount, float64(10))
	s.Update(KeyProductKeywords, "tv")

	cfg := s.Reset()
	assert.Equal(t, 80, cfg.MinDiscountPercentage)
	assert.Equal(t, []string{"iphone"}, s.Snapshot().ProductKeywords)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newTestStore()
	snap := s.Snapshot()
	snap.ProductKeywords[0] = "mutated"

	assert.Equal(t, "iphone", s.Snapshot().ProductKeywords[0])
}

func TestOnChange(t *testing.T) {
	s := newTestStore()
	var calls []bool
	s.OnChange(func(old, updated RuntimeConfig) {
		calls = append(calls, updated.DebugMode)
	})

	s.Update(KeyDebugMode, true)
	s.Update(KeyMinDiscount, float64(500)) // rejected, no callback
	s.Reset()

	assert.Equal(t, []bool{true, false}, calls)
}

func TestRuntimeConfigJSON(t *testing.T) {
	s := newTestStore()
	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(30000), raw["SCRAPE_INTERVAL"])
	assert.Equal(t, float64(80), raw["MIN_DISCOUNT_PERCENTAGE"])
	assert.Equal(t, []interface{}{"111@c.us"}, raw["NOTIFICATION_DESTINATIONS"])
}
