package task

import "strings"

// NetflixServiceConfig is the canonical reference policy: a single-page
// "cancel membership" flow gated by one destructive click.
func NetflixServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Name:         "netflix",
		InitialURL:   "https://www.netflix.com/cancelplan",
		GoalTemplate: "Cancel the Netflix subscription for the signed-in account.",

		CheckpointConditions: []CheckpointPredicate{
			netflixDestructiveClick,
			netflixFinalCancelPage,
			netflixPaymentPage,
		},
		SuccessIndicators: []SnapshotPredicate{
			containsAny("cancellation confirmed", "membership ended", "restart membership", "billing stopped"),
		},
		FailureIndicators: []SnapshotPredicate{
			containsAny("error", "try again", "log in required", "session expired"),
		},
		AuthEdgeCaseDetectors: []AuthDetector{
			{Kind: "login", Predicate: containsAny("sign in to netflix", "enter your password", "email or phone number")},
			{Kind: "captcha", Predicate: containsAny("verify you're human", "captcha", "i'm not a robot")},
			{Kind: "mfa", Predicate: containsAny("enter the code", "two-step verification", "verification code")},
		},

		SystemPromptAddition: "" +
			"You are cancelling a Netflix subscription. Only call complete_task with status=success " +
			"once a success indicator (cancellation confirmed, membership ended, restart membership, or " +
			"billing stopped) is plausibly visible on the current page. Never attempt to solve a CAPTCHA " +
			"yourself; request human approval instead. Always request human approval before clicking any " +
			"control whose label implies finality (finish, confirm, complete).",
	}
}

func netflixDestructiveClick(tool ToolCall, _ NormalizedSnapshot) bool {
	if tool.Name != "browser_click" {
		return false
	}
	element, _ := tool.Args["element"].(string)
	element = strings.ToLower(element)
	return strings.Contains(element, "finish") || strings.Contains(element, "confirm") || strings.Contains(element, "complete")
}

func netflixFinalCancelPage(_ ToolCall, snap NormalizedSnapshot) bool {
	content := strings.ToLower(snap.Content)
	return strings.Contains(content, "finish") && strings.Contains(content, "cancel")
}

func netflixPaymentPage(_ ToolCall, snap NormalizedSnapshot) bool {
	url := strings.ToLower(snap.URL)
	content := strings.ToLower(snap.Content)
	return strings.Contains(url, "payment") || strings.Contains(content, "billing")
}

// containsAny builds a SnapshotPredicate that matches if any phrase appears
// in the snapshot's lowercased content.
func containsAny(phrases ...string) SnapshotPredicate {
	return func(snap NormalizedSnapshot) bool {
		content := strings.ToLower(snap.Content)
		for _, phrase := range phrases {
			if strings.Contains(content, phrase) {
				return true
			}
		}
		return false
	}
}
