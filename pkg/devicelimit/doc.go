// Package devicelimit caps how many devices an account may sign in from and requires an
// emailed one-time code before a new device is approved.
//
// The Service composes the device registry, the pending challenge store, the stored
// limit, accounts, notifications and anti-forgery nonces. Gate runs after a password has
// been accepted and decides whether the login proceeds, needs verification or is refused:
//
//	known device            -> Allow
//	live pending challenge  -> Verify (same code stays valid)
//	expired challenge       -> deleted, then treated as absent
//	registry under limit    -> new challenge emailed, Verify
//	registry full           -> DEVICE_LIMIT_REACHED
//
// Challenge expiry is evaluated when a challenge is read. Nothing sweeps stale
// challenges in the background; one may linger until the next login attempt.
//
// Operations on the same account are serialised in-process, so the limit holds for a
// single instance. Several instances sharing a store can still race past it.
package devicelimit
