// Package mgmt holds the management canister's http_request interface: the
// argument and response records, the transform callback reference, and the
// invoker that prices and issues the call.
//
// All types encode to the exact IDL shapes the management canister
// declares. HttpMethod uses the lower-case tags get, post and head.
// TransformFunc encodes as a query function reference.
//
// HTTPRequest issues exactly one call per invocation. Concurrent invocations
// share nothing.
package mgmt
