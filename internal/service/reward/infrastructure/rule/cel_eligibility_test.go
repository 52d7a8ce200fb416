package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardhub/internal/service/reward/domain"
)

func TestEligible(t *testing.T) {
	e, err := NewCELEligibilityEngine()
	require.NoError(t, err)

	// 2026-10-18 是周日
	sunday := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		rule string
		user int64
		want bool
	}{
		{name: "empty rule", rule: "", user: 1, want: true},
		{name: "even users", rule: "user_id % 2 == 0", user: 4, want: true},
		{name: "odd user rejected", rule: "user_id % 2 == 0", user: 5, want: false},
		{name: "weekend", rule: "weekday == 0 || weekday == 6", user: 1, want: true},
		{name: "evening", rule: "hour >= 18 && hour < 22", user: 1, want: true},
		{name: "morning only", rule: "hour < 12", user: 1, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Eligible(context.Background(), tc.rule, domain.EligibilityFact{UserID: tc.user, At: sunday})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileRejectsInvalidRules(t *testing.T) {
	e, err := NewCELEligibilityEngine()
	require.NoError(t, err)

	_, err = e.Compile("user_id +")
	assert.Error(t, err)
	_, err = e.Compile("user_id + 1")
	assert.Error(t, err)
	_, err = e.Compile("unknown_var > 1")
	assert.Error(t, err)
}

func TestCompileCaches(t *testing.T) {
	e, err := NewCELEligibilityEngine()
	require.NoError(t, err)

	_, err = e.Compile("user_id > 10")
	require.NoError(t, err)
	_, err = e.Compile("user_id > 10")
	require.NoError(t, err)
	assert.Len(t, e.programs, 1)
}
