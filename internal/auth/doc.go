// Package auth owns the console's authentication lifecycle.
//
// The Controller is a small state machine over three states: initializing,
// authenticated, unauthenticated. Startup restores a persisted session
// optimistically and validates it against the backend in the background, so
// the dashboard renders immediately after a restart. All transitions flow
// through the controller; nothing else writes the session store's auth
// state.
package auth
