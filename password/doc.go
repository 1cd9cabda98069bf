// Package password hashes and verifies passwords.
//
// Argon2id output is a PHC string:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// with unpadded base64 salt and hash. Bcrypt hashes keep their $2a$/$2b$
// modular crypt form. A [Chain] writes with its primary algorithm, verifies
// with whichever algorithm recognises the stored hash, and reports through
// [Chain.NeedsRehash] which hashes should be rewritten on the next login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy beyond input bounds; the engine owns policy.
package password
