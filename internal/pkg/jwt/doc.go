// Package jwt issues and verifies the access tokens handed out after a
// successful login.
//
// Claims carry the registered claim set plus the user id, phone, and role.
// Signing is symmetric HS512. Context helpers move verified claims from the
// authentication middleware down to the use cases.
package jwt
