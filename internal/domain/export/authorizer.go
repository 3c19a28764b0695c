package export

import (
	"context"
	"slices"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/google/uuid"
)

// Action is an operation checked against a document
type Action string

const (
	ActionExport Action = "voucher_export:create"
	ActionCancel Action = "voucher_export:cancel"
)

// PermissionAllDocuments lifts the own-documents restriction
const PermissionAllDocuments = "voucher_export:all_documents"

// Actor is the user on whose behalf an export or cancellation runs
type Actor struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Permissions []string
}

// HasPermission reports whether the actor holds a permission
func (a Actor) HasPermission(permission string) bool {
	return slices.Contains(a.Permissions, permission) || slices.Contains(a.Permissions, "*")
}

// Authorizer decides whether an actor may act on a document
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, action Action, doc *settlement.Document) bool
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, actor Actor, action Action, doc *settlement.Document) bool

// Authorize calls f
func (f AuthorizerFunc) Authorize(ctx context.Context, actor Actor, action Action, doc *settlement.Document) bool {
	return f(ctx, actor, action, doc)
}

// AllowAll permits every document of the actor's tenant
type AllowAll struct{}

// Authorize implements Authorizer
func (AllowAll) Authorize(_ context.Context, actor Actor, _ Action, doc *settlement.Document) bool {
	return doc.TenantID == actor.TenantID
}

// PermissionAuthorizer requires the action's permission and, unless the actor
// holds PermissionAllDocuments, that the actor created the document.
type PermissionAuthorizer struct{}

// Authorize implements Authorizer
func (PermissionAuthorizer) Authorize(_ context.Context, actor Actor, action Action, doc *settlement.Document) bool {
	if doc.TenantID != actor.TenantID {
		return false
	}
	if !actor.HasPermission(string(action)) {
		return false
	}
	if actor.HasPermission(PermissionAllDocuments) {
		return true
	}
	return doc.CreatedBy != nil && *doc.CreatedBy == actor.UserID
}
