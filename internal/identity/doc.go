// Package identity is the credential side of the dashboard: email/password
// accounts with Argon2id hashing and sign-in attempt limiting.
//
// Only credentials live here. Roles are deliberately out of this package's
// reach: they are resolved from the admins/{id} and users/{id} directory
// records in the realtime store, never from anything the client supplied.
//
// Accounts can be created from the dashboard (admin user provisioning) but
// not deleted; deleting a user removes their directory records while the
// credential account remains. That is a known limitation of the layer, not
// a defect to fix here.
package identity
