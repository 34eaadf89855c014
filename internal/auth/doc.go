// Package auth issues and checks credentials for the bridge's HTTP API.
//
// There is a single operator account configured under security.admin. Its
// password is stored as an Argon2id PHC string produced by HashPassword
// (savecair-bridge -hash-password prints one). A successful login yields
// an HS256 access token signed with security.jwt.secret; ParseToken
// validates it on every protected request.
package auth
