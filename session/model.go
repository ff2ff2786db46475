package session

// Role codes used in the binary record.
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Record is the persisted {user, active view} tuple.
//
// Record is a cache of the controller's in-memory session, never the source
// of truth after boot.
type Record struct {
	UserID        string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	Permission    string
	ActiveRole    string

	SavedAt int64
}
