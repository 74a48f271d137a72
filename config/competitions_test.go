package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deutschtag/germanday/pipeline"
)

func TestDefaultEventCatalogue(t *testing.T) {
	ev := defaultEvent()

	require.NotEmpty(t, ev.Competitions)
	assert.Equal(t, []string{"poster", "essay", "performance", "quiz"}, ev.Tags())

	poster, ok := ev.Find("poster")
	require.True(t, ok)
	assert.True(t, poster.RequiresFile)
	assert.Equal(t, int64(10<<20), poster.Constraints.MaxBytes)
	assert.Contains(t, poster.Constraints.AllowedMIMETypes, "application/pdf")

	perf, ok := ev.Find("performance")
	require.True(t, ok)
	assert.Equal(t, int64(100<<20), perf.Constraints.MaxBytes)
	assert.False(t, perf.DerivedCategory)

	quiz, ok := ev.Find("quiz")
	require.True(t, ok)
	assert.False(t, quiz.RequiresFile)

	_, ok = ev.Find("karaoke")
	assert.False(t, ok)
}

func TestFindNormalizesTag(t *testing.T) {
	ev := defaultEvent()
	_, ok := ev.Find("  Poster ")
	assert.True(t, ok)
}

func TestResolveCategoryDerived(t *testing.T) {
	ev := defaultEvent()
	essay, ok := ev.Find("essay")
	require.True(t, ok)

	cat, ok := essay.ResolveCategory("Goethe Institut", "ignored", ev.Categories)
	require.True(t, ok)
	assert.Equal(t, "Goethe", cat, "derived competitions ignore the requested category")

	cat, ok = essay.ResolveCategory("Unknown High School", "", ev.Categories)
	require.True(t, ok)
	assert.Equal(t, "Inter School", cat)
}

func TestResolveCategoryUserPicked(t *testing.T) {
	ev := defaultEvent()
	perf, ok := ev.Find("performance")
	require.True(t, ok)

	cat, ok := perf.ResolveCategory("Any School", "senior", ev.Categories)
	require.True(t, ok)
	assert.Equal(t, "Senior", cat, "requested category normalizes to catalogue casing")

	_, ok = perf.ResolveCategory("Any School", "Masters", ev.Categories)
	assert.False(t, ok, "category outside the allowed list is rejected")

	_, ok = perf.ResolveCategory("Any School", "", ev.Categories)
	assert.False(t, ok)
}

func TestResolveCategoryBlockedPair(t *testing.T) {
	perf := Competition{
		Tag:             "performance",
		DerivedCategory: false,
		Categories:      []string{"Junior", "Senior", "Inter School"},
		BlockedPairs:    map[string]string{"DSD Partner School": "Inter School"},
	}
	rules := pipeline.CategoryRules{Default: "Inter School"}

	_, ok := perf.ResolveCategory("DSD Partner School", "Inter School", rules)
	assert.False(t, ok, "blocked school/category pair must be rejected")

	cat, ok := perf.ResolveCategory("DSD Partner School", "Junior", rules)
	require.True(t, ok)
	assert.Equal(t, "Junior", cat)

	cat, ok = perf.ResolveCategory("Other School", "Inter School", rules)
	require.True(t, ok)
	assert.Equal(t, "Inter School", cat)
}
