// Package jwt mints and verifies the access/refresh token pair using two
// independently keyed HS256 signers, so a stolen refresh token can never
// pass as an access token.
package jwt
