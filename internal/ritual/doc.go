// Package ritual sequences a guided ritual through its phases. A Machine owns
// one session and only lets it advance once every spoken block of the current
// phase has been validated against its anchor phrases; the Service starts
// machines from the definition library and persists finished sessions.
package ritual
