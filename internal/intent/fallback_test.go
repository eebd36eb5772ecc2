package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_KeywordTable(t *testing.T) {
	cases := []struct {
		in     string
		intent string
	}{
		{"What is my account balance?", "account.balance"},
		{"Show my recent transactions", "account.transactions"},
		{"What are the branch hours?", "branch.hours"},
		{"I need to report a lost card", "card.lost"},
		{"Tell me about loan options", "loan.information"},
		{"I want to speak to a human agent", "escalate.human"},
		{"HELLO there", "greeting"},
		{"thanks a lot", "thanks"},
		{"ok bye", "goodbye"},
	}
	for _, tc := range cases {
		t.Run(tc.intent, func(t *testing.T) {
			got := Match(tc.in)
			assert.Equal(t, tc.intent, got.Intent.DisplayName)
			assert.Equal(t, 0.95, got.Intent.Confidence)
			assert.Equal(t, tc.in, got.QueryText)
			assert.NotEmpty(t, got.FulfillmentText)
		})
	}
}

func TestMatch_PriorityOrder(t *testing.T) {
	got := Match("What's my balance and also I lost my card")
	assert.Equal(t, "account.balance", got.Intent.DisplayName)

	// "agent" is checked before "hello" even though hello appears first.
	got = Match("hello, can I talk to an agent")
	assert.Equal(t, "escalate.human", got.Intent.DisplayName)
}

func TestMatch_DefaultFallback(t *testing.T) {
	got := Match("xyz123 gibberish")
	assert.Equal(t, FallbackIntent, got.Intent.DisplayName)
	assert.Equal(t, 0.5, got.Intent.Confidence)
	assert.Contains(t, got.FulfillmentText, "What would you like to know?")
	assert.NotNil(t, got.Parameters)
	assert.NotNil(t, got.OutputContexts)
}

func TestMatch_Deterministic(t *testing.T) {
	inputs := []string{"hello", "balance", "xyz", "Lost LOAN", "  thank you  ", "é ü"}
	for _, in := range inputs {
		assert.Equal(t, Match(in), Match(in), in)
	}
}

func TestFallback_DetectIntent(t *testing.T) {
	res, err := Fallback{}.DetectIntent(context.Background(), Query{Text: "branch hours please"})
	require.NoError(t, err)
	assert.Equal(t, "branch.hours", res.Intent.DisplayName)
}

func TestWithFallback(t *testing.T) {
	ctx := context.Background()
	res, err := WithFallback(nil).DetectIntent(ctx, Query{Text: "lost my card"})
	require.NoError(t, err)
	assert.Equal(t, "card.lost", res.Intent.DisplayName)

	unconfigured := ResolverFunc(func(context.Context, Query) (Result, error) { return Result{}, ErrNotConfigured })
	res, err = WithFallback(unconfigured).DetectIntent(ctx, Query{Text: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, "thanks", res.Intent.DisplayName)

	boom := errors.New("boom")
	failing := ResolverFunc(func(context.Context, Query) (Result, error) { return Result{}, boom })
	_, err = WithFallback(failing).DetectIntent(ctx, Query{Text: "thanks"})
	assert.ErrorIs(t, err, boom)
}
