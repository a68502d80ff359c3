// Package testdata generates realistic fixtures for tests and local
// development seeding.
package testdata

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/store/memory"
)

var sources = []string{"referral", "website", "event", "purchased_list", "cold_outreach"}

// NewContact generates a lead-type contact for the tenant.
func NewContact(tenantID int) *domain.Contact {
	return &domain.Contact{
		TenantID:    tenantID,
		Name:        gofakeit.Name(),
		Email:       gofakeit.Email(),
		Company:     gofakeit.Company(),
		Type:        domain.ContactTypeLead,
		Source:      gofakeit.RandomString(sources),
		Industry:    gofakeit.RandomString([]string{"saas", "fintech", "healthcare", "manufacturing", "retail"}),
		IndustryFit: gofakeit.Float64Range(0, 1),
	}
}

// NewRep generates an available sales rep for the tenant.
func NewRep(tenantID int) *domain.SalesRep {
	return &domain.SalesRep{
		TenantID:          tenantID,
		Name:              gofakeit.Name(),
		Email:             gofakeit.Email(),
		Specialization:    gofakeit.RandomString([]string{"saas", "fintech", "healthcare", ""}),
		ConversionRate:    gofakeit.Float64Range(5, 80),
		AssignedLeadCount: gofakeit.Number(0, 40),
	}
}

// NewTemplate generates a nurture template with the given day offsets, one
// step per offset in order.
func NewTemplate(tenantID int, dayOffsets ...int) *domain.NurtureTemplate {
	steps := make([]domain.NurtureStep, len(dayOffsets))
	for i, offset := range dayOffsets {
		steps[i] = domain.NurtureStep{
			Order:     i + 1,
			DayOffset: offset,
			Subject:   fmt.Sprintf("%s, %s", gofakeit.HipsterWord(), "{{first_name}}"),
			Body:      fmt.Sprintf("Hi {{name}}, %s", gofakeit.HipsterSentence(8)),
		}
	}
	return &domain.NurtureTemplate{
		TenantID: tenantID,
		Name:     gofakeit.BuzzWord() + " nurture",
		Steps:    steps,
	}
}

// Seed fills the in-memory store with a working tenant: reps, leads with
// scoring signals, and a three-step template. Used by the API binary's
// development mode and by tests that want a populated store.
func Seed(store *memory.Store, tenantID, contactCount, repCount int) {
	for i := 0; i < repCount; i++ {
		store.PutRep(NewRep(tenantID))
	}
	for i := 0; i < contactCount; i++ {
		c := store.PutContact(NewContact(tenantID))
		store.SetInteractions(c.ID, gofakeit.Number(0, 12))
		store.SetOpenDeal(c.ID, gofakeit.Bool())
	}
	store.PutTemplate(NewTemplate(tenantID, 0, 3, 7))
}
