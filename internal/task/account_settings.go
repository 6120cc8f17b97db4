package task

import "strings"

// AccountSettingsServiceConfig is a generic fallback policy for services
// that expose a standard account/subscription settings page but have no
// bespoke policy written for them yet. It demonstrates that ServiceRegistry
// is pluggable beyond the Netflix reference: a new service is a new
// ServiceConfig, not a new engine code path.
func AccountSettingsServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Name:         "account-settings",
		InitialURL:   "https://account.example.com/settings/subscription",
		GoalTemplate: "Cancel the subscription from the account settings page.",

		CheckpointConditions: []CheckpointPredicate{
			accountSettingsDestructiveClick,
		},
		SuccessIndicators: []SnapshotPredicate{
			containsAny("subscription cancelled", "subscription canceled", "plan cancelled", "no active subscription"),
		},
		FailureIndicators: []SnapshotPredicate{
			containsAny("error", "try again", "something went wrong", "session expired"),
		},
		AuthEdgeCaseDetectors: []AuthDetector{
			{Kind: "login", Predicate: containsAny("sign in", "log in", "enter your password")},
			{Kind: "captcha", Predicate: containsAny("captcha", "verify you're human")},
			{Kind: "mfa", Predicate: containsAny("verification code", "two-factor", "2fa")},
		},

		SystemPromptAddition: "" +
			"You are cancelling a subscription from a generic account settings page. Only call " +
			"complete_task with status=success once the page clearly shows the subscription is " +
			"cancelled or inactive. Request human approval before any irreversible confirmation click.",
	}
}

func accountSettingsDestructiveClick(tool ToolCall, _ NormalizedSnapshot) bool {
	if tool.Name != "browser_click" {
		return false
	}
	element, _ := tool.Args["element"].(string)
	element = strings.ToLower(element)
	for _, marker := range []string{"cancel subscription", "confirm cancellation", "cancel plan", "yes, cancel"} {
		if strings.Contains(element, marker) {
			return true
		}
	}
	return false
}
