// Package delivery carries one-time codes and magic links to users.
//
// A [Job] names what to send and to whom. [Dispatcher] either sends it
// immediately through an [EmailSender] or [SMSSender], or serializes it onto
// a [JobQueue] for a background worker (see delivery/queue). Both paths end
// in [Deliver].
//
// # What this package must NOT do
//
//   - Persist or generate codes; the engine hands over plaintext only after
//     the hash is stored.
//   - Log code or link plaintext.
package delivery
