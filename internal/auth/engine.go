package auth

import (
	"sort"

	"github.com/studyshelf/apiserver/types"
)

// Action identifies an operation a caller wants to perform. The engine
// only cares about the authorization class of the action, not its payload.
type Action int

const (
	ActionViewMaterial Action = iota
	ActionListMaterials
	ActionCreateMaterial
	ActionEditMaterial
	ActionDeleteMaterial
	ActionRemoveAttachment
	ActionApproveUser
	ActionRevokeUser
	ActionDismissUser
	ActionListUsers
)

// RequiresTeacher reports whether the action is reserved for teachers.
func (a Action) RequiresTeacher() bool {
	switch a {
	case ActionCreateMaterial, ActionEditMaterial, ActionDeleteMaterial,
		ActionRemoveAttachment, ActionApproveUser, ActionRevokeUser,
		ActionDismissUser, ActionListUsers:
		return true
	default:
		return false
	}
}

// DenyReason says why a request was refused. Callers map the reasons to
// different outcomes: redirect to login, a distinct pending-approval
// message, or a plain forbidden that leaks nothing about the resource.
type DenyReason int

const (
	DenyUnauthenticated DenyReason = iota + 1
	DenyNotApproved
	DenyForbidden
)

func (r DenyReason) String() string {
	switch r {
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyNotApproved:
		return "not approved"
	case DenyForbidden:
		return "forbidden"
	default:
		return "allowed"
	}
}

// Decision is the engine's verdict on a single action.
type Decision struct {
	reason DenyReason
}

// Allow builds an allowing decision.
func Allow() Decision {
	return Decision{}
}

// Deny builds a refusing decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool {
	return d.reason == 0
}

// Reason returns the deny reason, zero when the decision allows.
func (d Decision) Reason() DenyReason {
	return d.reason
}

// Decide evaluates the access rules for an action, in strict order with the
// first failing check winning: no claim, unapproved account, then the
// teacher-role requirement. Grade gating for material reads is handled by
// DecideView and VisibleMaterials, which carry the material context.
func Decide(claims *Claims, action Action) Decision {
	if claims == nil {
		return Deny(DenyUnauthenticated)
	}
	if !claims.IsApproved {
		return Deny(DenyNotApproved)
	}
	if action.RequiresTeacher() && claims.Role != types.RoleTeacher {
		return Deny(DenyForbidden)
	}
	return Allow()
}

// DecideView evaluates access to a single material of the given grade.
// Teachers bypass the grade gate entirely; students may only view materials
// at or below their own grade.
func DecideView(claims *Claims, materialGrade int) Decision {
	if d := Decide(claims, ActionViewMaterial); !d.Allowed() {
		return d
	}
	if claims.Role != types.RoleTeacher && materialGrade > claims.Grade {
		return Deny(DenyForbidden)
	}
	return Allow()
}

// VisibleMaterials computes the subset and order of materials the claim
// holder may see in a listing. Students are restricted to materials at or
// below their grade; teachers see everything. The result is ordered by
// effective time (last edit, else creation) descending, with descending id
// breaking ties so that re-running against unchanged storage yields the
// same order. The input slice is not modified.
func VisibleMaterials(claims *Claims, materials []types.Material) []types.Material {
	if claims == nil {
		return nil
	}

	visible := make([]types.Material, 0, len(materials))
	for _, m := range materials {
		if claims.Role != types.RoleTeacher && m.Grade > claims.Grade {
			continue
		}
		visible = append(visible, m)
	}

	sort.Slice(visible, func(i, j int) bool {
		ti, tj := visible[i].EffectiveTime(), visible[j].EffectiveTime()
		if ti.Equal(tj) {
			return visible[i].ID > visible[j].ID
		}
		return ti.After(tj)
	})
	return visible
}
