// Package tools registers the identity-governance tools on an MCP server.
//
// Every handler runs through Registry.invoke, which attaches the optional
// profile argument to the context, gates write tools, applies an optional
// JMESPath projection and converts the outcome into one of three result
// shapes:
//
//   - success: bounded JSON text plus an object-typed structured payload
//   - login required: a non-error result with loginRequired=true and the
//     fields the caller must supply to the login tool
//   - failure: IsError=true with {success:false, error:{type, message, ...}}
//
// Tools that modify upstream data (create_user, update_user, assign_role,
// revoke_role and api_request with a mutating method) fail with
// *WriteDisabledError before any network call unless writes are enabled.
package tools
