package db

// System actor IDs recorded as shared_by / approved_by / created_by for automated actions
const (
	// SystemUserCLI represents the enablementctl admin CLI
	SystemUserCLI = "00000000-0000-0000-0000-000000000001"

	// SystemUserAPI represents API system actions
	SystemUserAPI = "00000000-0000-0000-0000-000000000002"
)

// GetSystemUserBySource returns the system actor for an automated source
func GetSystemUserBySource(source string) string {
	switch source {
	case "cli":
		return SystemUserCLI
	default:
		return SystemUserAPI
	}
}
