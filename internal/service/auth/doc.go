// Package auth verifies the access tokens presented to the API. Tokens are
// issued by the external authentication service and signed with a shared
// HMAC secret; this package never issues tokens itself.
package auth
