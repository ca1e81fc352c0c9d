// Package settings implements the hierarchical override resolution and
// cascade engine shared by the six settings domains.
//
// An override record lives at one of three priorities (admin < sub-department
// < user, most specific wins) and every user carries a materialized
// assignment pointer to the record currently effective for them. The service
// layer owns the create/update/delete/resolve algorithms and the invariant
// that every pointer always references the highest-priority applicable
// record; it depends on the Store contract defined in this package and should
// never import from api/.
//
// Store implementations live in repository/postgres/ and repository/memory/.
package settings
