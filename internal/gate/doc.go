// Package gate decides whether a navigation target may be shown.
//
// Decisions are pure functions of the authentication state and the
// session's role, so every route answers the same way at the same moment
// and the rules are trivially testable.
package gate
