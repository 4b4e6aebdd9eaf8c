// Package models defines the records ytup keeps in its SQLite history.
//
//   - [Account] : a user that completed the OAuth flow, with its token file and granted scopes
//   - [Upload] : one attempt to publish a local file, its resulting video id and playlist placement
//
// Both implement [Model]; fields are private and exposed through getters and setters so
// repositories control ids, sequences and timestamps. [Repository] is the CRUD contract.
package models
