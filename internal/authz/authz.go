package authz

import (
	"errors"
	"sort"
)

var (
	ErrUnknownPermission   = errors.New("unknown permission")
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnknownResourceKind = errors.New("unknown resource kind")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrUserNotFound        = errors.New("user not found")
	ErrPermissionDenied    = errors.New("permission denied")
)

// PermissionSet is an unordered set of permission names.
type PermissionSet map[string]struct{}

func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s PermissionSet) HasAny(names ...string) bool {
	for _, n := range names {
		if s.Has(n) {
			return true
		}
	}
	return false
}

// Union returns a new set with the members of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for n := range s {
		out[n] = struct{}{}
	}
	for n := range other {
		out[n] = struct{}{}
	}
	return out
}

// Difference returns a new set with the members of s that are not in other.
func (s PermissionSet) Difference(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for n := range s {
		if !other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Names returns the members sorted, for stable responses and cache payloads.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Overrides are the per-user exceptions to a role's baseline.
type Overrides struct {
	Grants PermissionSet
	Blocks PermissionSet
}

// Resolution is the effective permission view of one user at one point in time.
type Resolution struct {
	UserID      int64
	RoleName    string
	Permissions PermissionSet
}

func (r *Resolution) Has(name string) bool {
	return r != nil && r.Permissions.Has(name)
}

func (r *Resolution) IsSuperadmin() bool {
	return r != nil && IsSuperadmin(r.RoleName)
}

// Actor is the caller-supplied identity the guard decides for.
func (r *Resolution) Actor() Actor {
	return Actor{UserID: r.UserID, RoleName: r.RoleName, Permissions: r.Permissions}
}
