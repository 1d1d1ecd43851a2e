// Package integration contains the Integration bounded context.
// This context links a tenant to external marketplaces and keeps the link alive.
//
// Key concepts:
//   - Integration: Aggregate root holding one tenant's connection to one marketplace
//   - Credentials: OAuth tokens or raw API key fields, opaque outside this package
//   - WebhookRegistration: Inbound notification endpoint created for an active integration
//   - SyncMarker: Initial-sync handoff record created after webhook setup
//   - AuthorizationAttempt: Ephemeral record correlating an OAuth callback with its state token
//   - ConnectError: Typed failure taxonomy shared by every connector layer
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
