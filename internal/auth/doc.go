// Package auth obtains and refreshes bearer tokens for the upstream identity API.
//
// # Login chain
//
// Vendor deployments disagree on where the login endpoint lives and what it
// expects, so the Authenticator walks an ordered list of candidates and stops
// at the first one that answers 2xx with a recognizable token field:
//
//	POST /ECM/api/login         {"username","password"}
//	POST /ECM/api/login         {"username","password","grant_type":"password"}
//	POST /api/login             ...same two payloads
//	POST /<api path>/login      ...same two payloads
//
// The order is a compatibility fallback chain and must be preserved.
//
// Token fields are looked up under several names (access_token, accessToken,
// token, id_token, jwt), first at the top level of the response body and then
// one level down under "data". Expiry uses the same rule with expires_in,
// expiresIn, expires, expiry and token_expires_in; when none is present the
// lifetime defaults to one hour.
//
// # Early renewal
//
// The cached expiry is now + max(30s, 92% of the reported lifetime), so a token
// is renewed before the vendor would reject it mid-flight.
//
// # Ambient profile
//
// WithProfile attaches a profile ID to a context. The gateway consults it when
// a call does not name a profile, so every sub-call made while serving one tool
// invocation shares the same credentials.
//
// # Inbound tokens
//
// JWTVerifier verifies HS256 bearer tokens presented to the HTTP transport of
// this server. It has nothing to do with upstream tokens.
package auth
