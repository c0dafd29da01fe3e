// Package identity manages the stateful side of a user account: self
// service registration, activation, password reset and change, admin
// CRUD, and the cache invalidation discipline every one of those
// mutations must follow.
//
// Account lifecycle:
//   - Accounts are created unactivated with a single-use activation key
//     (self registration) or activated with a pending reset key (admin
//     creation). Activation and reset keys are consumed exactly once;
//     reset keys additionally expire after a configurable window.
//   - Lifecycle centralizes the transitions. Every public operation runs
//     inside a single repository transaction and evicts the affected
//     login/email cache entries once the transaction commits.
//   - Stale unactivated accounts are reclaimed eagerly when their login
//     or email is re-registered, and purged in bulk by PurgeScheduler.
//
// Notifications:
//   - Notifier is a best-effort emitter for activation, creation, and
//     password reset events. Dispatch happens after commit, off the
//     request path, and failures are logged, never propagated.
package identity
