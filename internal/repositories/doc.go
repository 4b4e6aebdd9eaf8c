// Package repositories implements SQLite persistence for [models.Account] and [models.Upload].
//
//   - [UploadRepository] : upload history with soft deletes and sequence ordering
//   - [AccountRepository] : one row per authenticated user, upserted after each login
//
// [AccountRepository] also satisfies auth.AccountRecorder so the authentication manager can
// record logins without depending on this package.
package repositories
