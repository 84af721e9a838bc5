// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel and the model list used by AutoMigrate
//   - travel.go: the travel aggregate (travels, bookings, booking supplements)
//   - masterdata.go: replicated flights and supplements, local agencies and passengers
//
// Column names are shared with the schema registry: the structured store
// writes the same tables through plain column maps.
package models
