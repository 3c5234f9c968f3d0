/*
Package auth verifies the bearer tokens presented on WebSocket upgrade
and HTTP API requests. Token issuance via an OAuth device flow happens
elsewhere and is out of scope here; this package only validates a
token's signature and claims and resolves it to a types.User,
recreating the user record from claims when the database was reset but
the token is still a valid OAuth-issued credential.

Claims is signed and verified with golang-jwt/jwt/v5: Issue signs with
HS256, and Verify accepts any HMAC-signed token under the same key.
*/
package auth
