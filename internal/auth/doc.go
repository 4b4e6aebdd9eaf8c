// Package auth acquires and persists per-user OAuth2 credentials for the YouTube Data API.
//
// The authorization-code grant is driven by a [Manager]. The consent URL is shown to the user
// through a [FlowDelegate], and the resulting code comes back over a [CodeChannel]: either typed
// at the console or dropped into a file by the callback server.
package auth
