package tools

// Hidden markers embedded in published comments. These are wire-stable:
// existing PRs carry them, so changing one orphans every comment published
// before the change.
const (
	ReviewMarker   = "<!-- pr-agent:review -->"
	DescribeMarker = "<!-- pr-agent:describe -->"
	ImproveMarker  = "<!-- pr-agent:improve -->"

	SelfReviewApproveMarker     = "<!-- approve pr self-review -->"
	SelfReviewFoldMarker        = "<!-- fold suggestions self-review -->"
	SelfReviewApproveFoldMarker = "<!-- approve and fold suggestions self-review -->"
)
