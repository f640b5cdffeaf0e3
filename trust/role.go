package trust

import (
	"regexp"

	"github.com/hashicorp/go-multierror"
)

var expirationFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

// RoleBase holds the mechanics every signed role shares, independent
// of profile: type tag, monotonically increasing version, an
// expiration string in the strict timestamp format, the spec that
// produced it, and whatever roles it declares for downstream
// delegation.
type RoleBase struct {
	Type        string
	Version     int
	Expires     string
	SpecVersion string
	Spec        Spec
	Declared    map[string]RoleFullKeys
}

// ValidateExpiration enforces the strict UTC ISO-8601 shape; the
// format is total-order-preserving so Expired can compare strings
// directly instead of parsing a time.Time on every check.
func (r RoleBase) ValidateExpiration() error {
	if !expirationFormat.MatchString(r.Expires) {
		return newErr(CategoryRoleMeta, "", "expiration '"+r.Expires+"' does not match strict UTC ISO-8601", nil)
	}
	return nil
}

// Expired reports whether the frozen time reference is at or past the
// role's expiration instant.
func (r RoleBase) Expired(tr *TimeRef) bool {
	return tr.Timestamp() >= r.Expires
}

// ValidateDeclaredRoles checks that the set of declared role names is
// exactly mandatory plus some subset of optional, and that every
// declared role's key bundle is individually well-formed. Multiple
// violations are collected so a caller sees the whole picture at
// once, the way mamba's multi-key validation reports every bad
// delegation rather than stopping at the first.
func (r RoleBase) ValidateDeclaredRoles(mandatory, optional map[string]bool) error {
	var merr *multierror.Error
	for name := range mandatory {
		if _, ok := r.Declared[name]; !ok {
			merr = multierror.Append(merr, newErr(CategoryRoleMeta, name, "missing mandatory declared role", nil))
		}
	}
	for name, keys := range r.Declared {
		if !mandatory[name] && !optional[name] {
			merr = multierror.Append(merr, newErr(CategoryRoleMeta, name, "undeclared role name", nil))
			continue
		}
		if err := keys.Validate(); err != nil {
			merr = multierror.Append(merr, newErr(CategoryRoleMeta, name, "invalid declared role keys", err))
		}
	}
	if merr.ErrorOrNil() != nil {
		return newErr(CategoryRoleMeta, r.Type, "declared-roles validation failed", merr.ErrorOrNil())
	}
	return nil
}
