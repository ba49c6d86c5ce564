// Package models - organization.go defines the Organization record managed by the API.
package models

// Organization is a registered company. ID is assigned by the store on
// creation and never changes afterwards.
type Organization struct {
	ID               int64  `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	EstablishedOn    Date   `db:"established_on" json:"established_on"`
	RegistrationCode string `db:"registration_code" json:"registration_code"`
	Address          string `db:"address" json:"address"`
}

// OrganizationPage is one page of organizations ordered by ID, plus the total
// number of records in the store.
type OrganizationPage struct {
	Total int
	Items []*Organization
}
