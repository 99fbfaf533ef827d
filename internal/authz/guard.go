package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/coursehub/internal/observability"
)

// Actor is who the guard decides for.
type Actor struct {
	UserID      int64
	RoleName    string
	Permissions PermissionSet
}

type DenialReason string

const (
	ReasonNotOwner             DenialReason = "NotOwner"
	ReasonMissingOwnPermission DenialReason = "MissingOwnPermission"
)

func (r DenialReason) Message() string {
	switch r {
	case ReasonNotOwner:
		return "only the owner may modify this resource"
	case ReasonMissingOwnPermission:
		return "lacks permission to manage own resources of this type"
	default:
		return ""
	}
}

// Decision is the result of an ownership check. A denial is a value, not an error.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

func (d Decision) Message() string {
	return d.Reason.Message()
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenialReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanModify applies the ownership table. The caller has already checked both permission names
// against the catalog.
func CanModify(actor Actor, ownerUserID int64, ownPermission, moderateAllPermission string) Decision {
	isOwner := ownerUserID == actor.UserID
	canModerateAll := actor.Permissions.Has(moderateAllPermission) || IsSuperadmin(actor.RoleName)
	canManageOwn := actor.Permissions.Has(ownPermission)

	switch {
	case canModerateAll:
		return allow()
	case isOwner && canManageOwn:
		return allow()
	case !isOwner:
		return deny(ReasonNotOwner)
	default:
		return deny(ReasonMissingOwnPermission)
	}
}

type ResourceKind string

const (
	ResourceComment  ResourceKind = "comment"
	ResourceRating   ResourceKind = "rating"
	ResourceResource ResourceKind = "resource"
)

// OwnershipRule is the permission pair that governs one resource kind.
type OwnershipRule struct {
	Own         string
	ModerateAll string
}

var ownershipRules = map[ResourceKind]OwnershipRule{
	ResourceComment:  {Own: PermManageOwnComments, ModerateAll: PermModerateAllComments},
	ResourceRating:   {Own: PermManageOwnRatings, ModerateAll: PermModerateAllRatings},
	ResourceResource: {Own: PermManageOwnResource, ModerateAll: PermModerateAllResources},
}

func RuleFor(kind ResourceKind) (OwnershipRule, error) {
	rule, ok := ownershipRules[kind]
	if !ok {
		return OwnershipRule{}, fmt.Errorf("%w: %q", ErrUnknownResourceKind, kind)
	}
	return rule, nil
}

// Guard resolves the actor from the store and applies CanModify.
type Guard struct {
	resolver *Resolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewGuard(resolver *Resolver, metrics *observability.Metrics, logger *slog.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

func (g *Guard) CanModify(ctx context.Context, userID, ownerUserID int64, ownPermission, moderateAllPermission string) (Decision, error) {
	if err := g.resolver.Catalog().Require(ownPermission, moderateAllPermission); err != nil {
		return Decision{}, err
	}

	res, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	d := CanModify(res.Actor(), ownerUserID, ownPermission, moderateAllPermission)
	g.metrics.ObserveDecision(d.Allowed, string(d.Reason))
	if !d.Allowed {
		g.logger.DebugContext(ctx, "modification denied",
			"user_id", userID,
			"owner_user_id", ownerUserID,
			"permission", ownPermission,
			"reason", d.Reason,
		)
	}
	return d, nil
}

// CanModifyResource looks up the permission pair for kind and delegates to CanModify.
func (g *Guard) CanModifyResource(ctx context.Context, userID int64, kind ResourceKind, ownerUserID int64) (Decision, error) {
	rule, err := RuleFor(kind)
	if err != nil {
		return Decision{}, err
	}
	return g.CanModify(ctx, userID, ownerUserID, rule.Own, rule.ModerateAll)
}
