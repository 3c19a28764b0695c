// Package models holds the GORM table models behind the repositories. The
// domain packages never import it.
//
//   - base.go: identity and tenant aggregate columns
//   - settlement.go: settlement documents with their line items and cash transactions
//   - export.go: export tasks, produced file metadata and marker reversal audit rows
package models
