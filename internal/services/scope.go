package services

import "github.com/envault/envault/internal/models"

// AuthScope is the immutable authorization context attached to a request once
// its API key has been resolved: the authenticated user plus every permission
// record that user holds. Downstream handlers must reject any app or
// environment not reachable from it.
type AuthScope struct {
	User        models.User
	Permissions []models.Permission
}

// AppIDs returns the set of app identifiers the scope can reach.
func (s AuthScope) AppIDs() []string {
	ids := make([]string, 0, len(s.Permissions))
	for _, perm := range s.Permissions {
		ids = append(ids, perm.AppID)
	}
	return ids
}

// CanAccessApp reports whether any permission covers the app.
func (s AuthScope) CanAccessApp(appID string) bool {
	for _, perm := range s.Permissions {
		if perm.AppID == appID {
			return true
		}
	}
	return false
}

// CanAccessEnv reports whether the scope covers a specific environment of an app.
func (s AuthScope) CanAccessEnv(appID, envID string) bool {
	for _, perm := range s.Permissions {
		if perm.AppID == appID && perm.HasEnvironment(envID) {
			return true
		}
	}
	return false
}
