//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based secretgate.UserStore and an scs session
// store. It supports SQLite and PostgreSQL.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: accounts, with nullable unique username, google_id and facebook_id
//   - secrets: one row per submitted secret, ordered by id
//   - sessions: server side session state for scs
//
// NULL never collides with NULL in a unique index, which gives sparse
// uniqueness on both databases. Federated find-or-create is a single
// INSERT ... ON CONFLICT DO NOTHING followed by a read.
//
// # Usage
//
//	db, _ := gormstore.Open("postgres", dsn)
//	gormstore.AutoMigrate(db)
//	users := gormstore.NewUserStore(db)
//	sessions := secretgate.NewSessionManager(users, gormstore.NewSessionStore(db), key)
package gorm
