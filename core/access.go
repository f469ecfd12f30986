package core

import "context"

// Authorizer decides whether a user may change a resource. Only the API
// layer consults it; the service trusts its callers.
type Authorizer interface {
	CanManage(ctx context.Context, user string, resource string) bool
}

// AllowAll grants every request.
type AllowAll struct{}

func (AllowAll) CanManage(context.Context, string, string) bool { return true }

// RoleAuthorizer lets the listed users manage every resource.
type RoleAuthorizer struct {
	Managers map[string]bool
}

func (r RoleAuthorizer) CanManage(_ context.Context, user string, _ string) bool {
	return r.Managers[user]
}
