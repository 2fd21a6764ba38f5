//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the secretgate
// user and session stores for deployments on Google Cloud Platform.
//
// # Datastore Kinds
//
//   - User: accounts with optional local credential and provider ids
//   - Secret: secrets, stored as children of their User
//   - Claim: "username:<name>", "google:<id>" and "facebook:<id>" reservations
//   - Session: scs session data keyed by session token
//
// Claims are written in the same transaction as the user they point to, so two
// concurrent first logins with one provider id always resolve to a single user.
//
// # Namespacing
//
// Both stores accept a Datastore namespace to isolate deployments sharing a project:
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "staging")
//	sessions := gae.NewSessionStore(client, "staging")
package gae
