package enums

// Action types recorded in the audit trail and used as rate limit keys.
const (
	ActionDiscoverySearch = "discovery_search"
	ActionSwipe           = "swipe"
	ActionMessage         = "message"
	ActionReport          = "report"
	ActionProfileView     = "profile_view"
)

const ResourceSwipe = "swipe"
