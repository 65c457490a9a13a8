package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

func newestWithAddress(t *testing.T, actor, address string) *models.Record {
	t.Helper()
	content := `{}`
	if address != "" {
		content = fmt.Sprintf(`{"lud16":%q}`, address)
	}
	profile, err := models.ParseProfile(content)
	require.NoError(t, err)
	return models.NewRecord(models.RawRecord{ID: "id-" + actor, Actor: actor, Content: content}, profile, "s")
}

func TestIndex_NoAddressHasNoEffect(t *testing.T) {
	x := NewIndex(3)

	eval := x.Evaluate("X", newestWithAddress(t, "X", ""), "s1")

	assert.Equal(t, Evaluation{}, eval)
	assert.Zero(t, x.Count())
}

func TestIndex_AdmitsInOrderUntilFull(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	x := NewIndex(3)
	x.now = func() time.Time { return fixed }

	for i := 1; i <= 3; i++ {
		eval := x.Evaluate(fmt.Sprintf("a%d", i), newestWithAddress(t, "a", fmt.Sprintf("u%d@x.com", i)), "s1")
		assert.True(t, eval.Admitted)
		assert.Equal(t, i, eval.Order)
		assert.Equal(t, i == 3, eval.Goal)
	}
	assert.True(t, x.Full())

	eval := x.Evaluate("a4", newestWithAddress(t, "a4", "u4@x.com"), "s1")
	assert.False(t, eval.Admitted)
	assert.True(t, eval.Rejected)
	assert.False(t, eval.Goal)
	assert.Equal(t, 3, x.Count())
	assert.False(t, x.IsAdmitted("u4@x.com"))

	entries := x.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "u1@x.com", entries[0].Address)
	assert.Equal(t, "a1", entries[0].Actor)
	assert.Equal(t, fixed, entries[0].AdmittedAt)
}

func TestIndex_CorroborationIndependentOfAdmission(t *testing.T) {
	x := NewIndex(1)

	x.Evaluate("A", newestWithAddress(t, "A", "a@x.com"), "s1")
	rejected := x.Evaluate("B", newestWithAddress(t, "B", "b@x.com"), "s1")
	require.True(t, rejected.Rejected)
	x.Evaluate("B", newestWithAddress(t, "B", "b@x.com"), "s2")

	assert.Equal(t, []string{"s1", "s2"}, x.Corroboration("b@x.com"))

	again := x.Evaluate("A", newestWithAddress(t, "A", "a@x.com"), "s3")
	assert.False(t, again.Admitted)
	assert.False(t, again.Goal)
	assert.Equal(t, 1, again.Order)
	assert.Equal(t, []string{"s1", "s3"}, x.Corroboration("a@x.com"))
}

func TestIndex_DefaultCapAndReset(t *testing.T) {
	x := NewIndex(-5)
	assert.Equal(t, models.DefaultDiscoveryCap, x.Cap())

	x.Evaluate("A", newestWithAddress(t, "A", "a@x.com"), "s1")
	x.Reset()

	assert.Zero(t, x.Count())
	assert.Nil(t, x.Corroboration("a@x.com"))
	assert.False(t, x.IsAdmitted("a@x.com"))
}
