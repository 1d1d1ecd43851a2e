// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Credential material never appears in a model in clear text: repositories seal
// it before building a model and open it after loading one.
//
// Structure:
//   - base.go: Base persistence models (Record, TenantRecord)
//   - integration.go: Integration, webhook registration and sync marker models
package models
