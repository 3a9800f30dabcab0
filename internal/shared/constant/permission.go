package constant

// Casbin objects and actions. Policy rows live in the access_rules table and
// are seeded by ops; subjects are JWT roles.
const (
	PermMerchantApplications = "merchant:applications"

	PermActCreate = "create"
	PermActUpdate = "update"
)
