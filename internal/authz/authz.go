// Package authz is the identity and permission boundary of the chat core.
// Services ask an Oracle before every role-gated write; the production
// Oracle answers from the permission claims of the authenticated principal.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrForbidden is returned when the oracle denies an action.
var ErrForbidden = errors.New("forbidden")

// Action is a permission string granted by the identity provider.
type Action string

const (
	ActionCreateChannel  Action = "pm.chat.create_channel"
	ActionUpdateChannel  Action = "pm.chat.update_channel"
	ActionDeleteChannel  Action = "pm.chat.delete_channel"
	ActionManageMembers  Action = "pm.chat.manage_members"
	ActionManageRoles    Action = "pm.chat.manage_roles"
	ActionSendMessage    Action = "pm.chat.send_message"
	ActionPinMessage     Action = "pm.chat.pin_message"
	ActionDeleteMessage  Action = "pm.chat.delete_message"
	ActionReadChannel    Action = "pm.chat.read_channel"
	ActionDirectMessage  Action = "pm.chat.direct_message"
	ActionSearchMessages Action = "pm.chat.search"

	// Wildcard grants every chat action.
	Wildcard = "pm.chat.*"
)

// Resource names what an action applies to.
type Resource struct {
	Kind string
	ID   int64
}

func Channel(id int64) Resource { return Resource{Kind: "channel", ID: id} }
func Message(id int64) Resource { return Resource{Kind: "message", ID: id} }
func User(id int64) Resource    { return Resource{Kind: "user", ID: id} }

func (r Resource) String() string {
	if r.Kind == "" {
		return "*"
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Oracle authorizes userID to perform action on resource. A nil error means allowed.
type Oracle interface {
	Authorize(ctx context.Context, userID int64, action Action, resource Resource) error
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, userID int64, action Action, resource Resource) error

func (f OracleFunc) Authorize(ctx context.Context, userID int64, action Action, resource Resource) error {
	return f(ctx, userID, action, resource)
}

// AllowAll grants everything. Used by internal callers such as system jobs.
var AllowAll Oracle = OracleFunc(func(context.Context, int64, Action, Resource) error { return nil })

// Principal is the authenticated caller.
type Principal struct {
	UserID      int64
	DisplayName string
	Permissions []string
}

func (p *Principal) Has(action Action) bool {
	return slices.Contains(p.Permissions, string(action)) || slices.Contains(p.Permissions, Wildcard)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// ClaimsOracle answers from the principal stored in the request context.
// Requests on behalf of another user, or without a principal, are denied.
type ClaimsOracle struct{}

func NewClaimsOracle() *ClaimsOracle { return &ClaimsOracle{} }

func (ClaimsOracle) Authorize(ctx context.Context, userID int64, action Action, resource Resource) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: no principal for %s on %s", ErrForbidden, action, resource)
	}
	if p.UserID != userID {
		return fmt.Errorf("%w: principal %d acting as %d", ErrForbidden, p.UserID, userID)
	}
	if !p.Has(action) {
		return fmt.Errorf("%w: %s on %s", ErrForbidden, action, resource)
	}
	return nil
}
