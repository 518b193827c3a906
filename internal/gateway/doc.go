// Package gateway issues authenticated calls to the upstream identity API.
//
// # Call
//
// Gateway.Call resolves the effective profile and base URL, attaches a bearer
// token obtained from the auth package, and performs one HTTP exchange:
//
//	resp, err := gw.Call(ctx, gateway.Request{
//	    Endpoint: "/ECM/api/v5/users",
//	    Query:    map[string]any{"status": []any{"active", "locked"}, "limit": 50},
//	})
//
// Profile resolution order is Request.Profile, then the profile carried by
// auth.WithProfile on ctx, then the store's active or environment-default
// profile. Base URL resolution order is Request.BaseURL, then the profile's
// base URL, then the configured default; when none is set Call returns a
// *MissingConfigError.
//
// # Unauthorized retry
//
// A 401 on an authenticated call drops the cached token, forces a fresh login
// and repeats the call exactly once. The repeated call never retries again, so
// a server that always answers 401 yields an *UpstreamError after two attempts.
//
// # Response bodies
//
// Bodies are decoded as JSON when the content type mentions json or the trimmed
// body starts with '{' or '['. Anything else is returned as a string, and an
// empty body becomes an empty object. Non-2xx statuses become *UpstreamError
// with at most 2000 characters of the body.
package gateway
