package intent

import (
	"context"
	"errors"
	"strings"
)

const (
	// FallbackIntent is the intent name returned when no keyword matches.
	FallbackIntent = "fallback"

	matchConfidence    = 0.95
	fallbackConfidence = 0.5
)

type entry struct {
	keyword         string
	intentName      string
	fulfillmentText string
}

// entries are scanned in order; the first keyword found wins.
var entries = []entry{
	{
		keyword:         "balance",
		intentName:      "account.balance",
		fulfillmentText: "I can help you check your account balance. For security purposes, please verify your identity first. Your current checking account balance is $5,432.10 and your savings account balance is $12,890.55. Is there anything else you'd like to know?",
	},
	{
		keyword:         "transaction",
		intentName:      "account.transactions",
		fulfillmentText: "Here are your recent transactions:\n1. Amazon.com - $45.99 (Jan 29)\n2. Starbucks - $6.50 (Jan 29)\n3. Direct Deposit - +$2,500.00 (Jan 28)\n4. Electric Company - $125.00 (Jan 27)\n\nWould you like more details on any transaction?",
	},
	{
		keyword:         "hours",
		intentName:      "branch.hours",
		fulfillmentText: "Our branch hours are:\n- Monday to Friday: 9:00 AM - 5:00 PM\n- Saturday: 9:00 AM - 1:00 PM\n- Sunday: Closed\n\nWe also have 24/7 ATM access. Is there anything else I can help you with?",
	},
	{
		keyword:         "lost",
		intentName:      "card.lost",
		fulfillmentText: "I'm sorry to hear about your lost card. For your security, I've temporarily blocked your card. To get a replacement:\n1. You can order a new card here and it will arrive in 5-7 business days\n2. Or visit any branch with a valid ID for same-day replacement\n\nWould you like me to order a replacement card now?",
	},
	{
		keyword:         "loan",
		intentName:      "loan.information",
		fulfillmentText: "We offer several loan options:\n- Personal Loans: 6.99% APR, up to $50,000\n- Auto Loans: 4.49% APR, new & used vehicles\n- Home Equity: 5.25% APR, flexible terms\n- Mortgage: Starting at 6.125% APR\n\nWhich type of loan would you like to learn more about?",
	},
	{
		keyword:         "agent",
		intentName:      "escalate.human",
		fulfillmentText: "I understand you'd like to speak with a human agent. I'm connecting you now. Your estimated wait time is approximately 3 minutes. While you wait, is there anything I can help you with?",
	},
	{
		keyword:         "hello",
		intentName:      "greeting",
		fulfillmentText: "Hello! Welcome to Retail Bank. I'm your virtual branch assistant. I can help you with:\n- Account balances and transactions\n- Branch information and hours\n- Card services\n- Loan inquiries\n\nHow can I assist you today?",
	},
	{
		keyword:         "thank",
		intentName:      "thanks",
		fulfillmentText: "You're welcome! Is there anything else I can help you with today?",
	},
	{
		keyword:         "bye",
		intentName:      "goodbye",
		fulfillmentText: "Thank you for banking with us! Have a great day. If you need assistance in the future, I'm always here to help.",
	},
}

const fallbackText = "I'm here to help with your banking needs. You can ask me about:\n- Account balances and transactions\n- Branch hours and locations\n- Lost or stolen cards\n- Loan information\n- Or request to speak with a human agent\n\nWhat would you like to know?"

// Match classifies text against the keyword table. It never fails and
// returns the same Result for the same input.
func Match(text string) Result {
	lower := strings.ToLower(text)
	for _, e := range entries {
		if strings.Contains(lower, e.keyword) {
			return newResult(text, e.intentName, e.fulfillmentText, matchConfidence)
		}
	}
	return newResult(text, FallbackIntent, fallbackText, fallbackConfidence)
}

func newResult(text, name, fulfillment string, confidence float64) Result {
	return Result{
		QueryText:       text,
		FulfillmentText: fulfillment,
		Intent:          Intent{DisplayName: name, Confidence: confidence},
		Parameters:      map[string]any{},
		OutputContexts:  []OutputContext{},
	}
}

// Fallback is a Resolver backed by Match. It is used when no remote
// resolver is configured.
type Fallback struct{}

func (Fallback) DetectIntent(_ context.Context, q Query) (Result, error) {
	return Match(q.Text), nil
}

// WithFallback answers with the keyword matcher whenever r reports
// ErrNotConfigured. A nil r always uses the matcher.
func WithFallback(r Resolver) Resolver {
	if r == nil {
		return Fallback{}
	}
	return ResolverFunc(func(ctx context.Context, q Query) (Result, error) {
		res, err := r.DetectIntent(ctx, q)
		if errors.Is(err, ErrNotConfigured) {
			return Match(q.Text), nil
		}
		return res, err
	})
}
