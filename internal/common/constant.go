package common

// SessionTokenHeaderName is the gRPC metadata key carrying the session bearer.
const SessionTokenHeaderName = "session_token"

// RefreshedTokenHeaderName is the response header with the re-signed bearer
// issued after a successful authenticated call.
const RefreshedTokenHeaderName = "session_token_refreshed"
