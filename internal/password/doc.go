// Package password hashes and verifies passwords for the development identity
// service with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store passwords or hashes.
//   - Log plaintext passwords.
package password
