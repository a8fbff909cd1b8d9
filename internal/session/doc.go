// Package session tracks the signed-in principal and their resolved role.
//
// Roles are never read from tokens or cached credentials. They are derived
// from the realtime store on every resolution: presence under admins/{id}
// grants admin, otherwise the users/{id} directory record decides. Any
// failure to resolve degrades to the user role rather than erroring, so a
// store outage can never grant more access than a healthy one.
package session
