// Package auth is the authentication and session-lifecycle core of the
// blog platform: short-lived bearer access tokens, long-lived rotating
// refresh sessions, single-use admin invites, and single-use password
// reset tokens.
//
// Access tokens:
//   - TokenService signs and verifies stateless HS256 JWTs binding a
//     subject and role for a bounded window (minutes). Verification is
//     pure computation; revocation happens at the refresh-session layer.
//
// Refresh sessions:
//   - SessionManager issues opaque high-entropy tokens, persists only
//     their sha256 digests, and rotates them on use. Rotation is a single
//     conditional mutation in the store, so two requests racing on the
//     same plaintext can never both succeed.
//
// Invites and password resets:
//   - Command handlers (CreateInviteHandler, AcceptInviteHandler,
//     InitializePasswordResetHandler, FinalizePasswordResetHandler) own
//     the single-use, time-boxed token flows. A successful reset revokes
//     every refresh session the user holds.
//
// The HTTP gateway (AuthController plus middleware/jwtware) is a thin
// composition layer: it validates payloads, invokes the handlers above,
// and delivers the refresh plaintext exclusively through an HTTP-only,
// SameSite=Strict cookie.
package auth
