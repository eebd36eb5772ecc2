package conversation

// QuickAction is a one-tap shortcut that submits a canned query.
type QuickAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Query string `json:"query"`
}

var quickActions = []QuickAction{
	{ID: "1", Label: "Account Balance", Query: "What is my account balance?"},
	{ID: "2", Label: "Recent Transactions", Query: "Show my recent transactions"},
	{ID: "3", Label: "Branch Hours", Query: "What are the branch hours?"},
	{ID: "4", Label: "Report Lost Card", Query: "I need to report a lost card"},
	{ID: "5", Label: "Loan Information", Query: "Tell me about loan options"},
	{ID: "6", Label: "Speak to Agent", Query: "I want to speak to a human agent"},
}

// QuickActions returns the shortcut list in display order.
func QuickActions() []QuickAction {
	return append([]QuickAction(nil), quickActions...)
}

// LookupQuickAction finds a shortcut by id.
func LookupQuickAction(id string) (QuickAction, bool) {
	for _, qa := range quickActions {
		if qa.ID == id {
			return qa, true
		}
	}
	return QuickAction{}, false
}
