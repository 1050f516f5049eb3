// Package analytics builds role-scoped usage queries and normalises backend
// analytics payloads into fully-populated view models.
//
// The backend may omit any field of its usage response. Normalisation is the
// single place where defaulting happens: downstream presentation code always
// receives zeroed numbers, empty maps, empty slices, and zero-valued nested
// structs — never an absent field. Derived values (percentage shares,
// formatted strings) are recomputed here and never trusted from the wire.
//
// Query planning enforces the multi-tenant boundary client-side: for any role
// below SUPERADMIN the query's customer scope is forced to the session's own
// tenant, overriding whatever the caller asked for. The server remains the
// authority; this is defence in depth, not a security boundary.
package analytics
