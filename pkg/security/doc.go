/*
Package security provides the cryptographic primitives SNAS needs to
authenticate users: Argon2id password hashing and random reset-token
generation. It intentionally does not manage TLS material — the NATS bus
and admin socket are expected to sit behind transport security configured
at the NATS server / host level, not inside this process.

# Password Hashing

HashPassword derives an Argon2id hash using parameters tuned for
interactive login (m=64MB, t=3, p=4) and encodes them alongside the salt
and hash in a single self-describing string:

	argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>

VerifyPassword re-derives the hash using the embedded parameters and
compares it to the stored hash in constant time, so a parameter change in
a future release does not invalidate already-hashed passwords.

# Reset Tokens

GenerateResetToken produces a 32-character, human-transcribable token
drawn from an alphabet that excludes visually ambiguous characters
(0/O, 1/l/I). Reset tokens are hashed with HashPassword before being
stored — the plaintext token only ever exists in memory and in the
one-time response handed back to the admin who requested the reset.
*/
package security
