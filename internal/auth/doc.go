// Package auth authenticates console operators.
//
// Operators are declared in configuration with an Argon2id PHC hash. A
// successful login yields a short-lived HS256 access token carrying the
// username as subject and the admin role. There are no sessions or refresh
// tokens; an expired token means logging in again.
package auth
