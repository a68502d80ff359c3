package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
	"github.com/jordanlanch/salespilot/pkg/store/memory"
)

// recordingNotifier captures assignment notifications.
type recordingNotifier struct {
	calls int
	fail  bool
}

func (n *recordingNotifier) NotifyAssignment(ctx context.Context, rep *domain.SalesRep, contact *domain.Contact) error {
	n.calls++
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func seedLead(store *memory.Store, tenantID int) *domain.Contact {
	return store.PutContact(&domain.Contact{
		TenantID: tenantID,
		Name:     "Grace",
		Email:    "grace@example.com",
		Type:     domain.ContactTypeLead,
		Source:   "referral",
		Industry: "fintech",
	})
}

func TestSuggest(t *testing.T) {
	log := logger.New("error")

	t.Run("ranks specialists above generalists", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		specialist := store.PutRep(&domain.SalesRep{
			TenantID: 1, Name: "Spec", Specialization: "fintech",
			ConversionRate: 30, AssignedLeadCount: 10,
		})
		generalist := store.PutRep(&domain.SalesRep{
			TenantID: 1, Name: "Gen",
			ConversionRate: 50, AssignedLeadCount: 2,
		})

		svc := NewService(store, store, nil, log)
		suggestions, err := svc.Suggest(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, specialist.ID, suggestions[0].Rep.ID)
		assert.Equal(t, generalist.ID, suggestions[1].Rep.ID)
		assert.Greater(t, suggestions[0].Score, suggestions[1].Score)
		assert.NotEmpty(t, suggestions[0].Reasons)
	})

	t.Run("filters reps on leave", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Away", IsOnLeave: true, ConversionRate: 90})
		available := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Here", ConversionRate: 10})

		svc := NewService(store, store, nil, log)
		suggestions, err := svc.Suggest(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, available.ID, suggestions[0].Rep.ID)
	})

	t.Run("empty roster fails with no eligible rep", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		store.PutRep(&domain.SalesRep{TenantID: 1, IsOnLeave: true})

		svc := NewService(store, store, nil, log)
		_, err := svc.Suggest(context.Background(), 1, lead.ID)
		assert.True(t, domain.IsNoEligibleRep(err))
	})

	t.Run("ties broken by conversion then workload then rep id", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		// Identical composite scores except for the tie-break fields.
		a := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "A", ConversionRate: 40, AssignedLeadCount: 4})
		b := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "B", ConversionRate: 40, AssignedLeadCount: 4})

		svc := NewService(store, store, nil, log)
		suggestions, err := svc.Suggest(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, a.ID, suggestions[0].Rep.ID)
		assert.Equal(t, b.ID, suggestions[1].Rep.ID)
	})

	t.Run("unknown contact returns not found", func(t *testing.T) {
		store := memory.New()
		svc := NewService(store, store, nil, log)
		_, err := svc.Suggest(context.Background(), 1, 42)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestAssign(t *testing.T) {
	log := logger.New("error")

	t.Run("assigns rep and notifies", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		rep := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Rex", Email: "rex@example.com"})
		notifier := &recordingNotifier{}

		svc := NewService(store, store, notifier, log)
		result, err := svc.Assign(context.Background(), 1, lead.ID, rep.ID)
		require.NoError(t, err)
		assert.True(t, result.Changed)
		assert.Equal(t, 1, notifier.calls)

		stored, err := store.GetContact(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.AssignedRepID)
		assert.Equal(t, rep.ID, *stored.AssignedRepID)
	})

	t.Run("reassigning the same rep is a no-op", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		rep := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Rex"})
		notifier := &recordingNotifier{}

		svc := NewService(store, store, notifier, log)
		_, err := svc.Assign(context.Background(), 1, lead.ID, rep.ID)
		require.NoError(t, err)

		result, err := svc.Assign(context.Background(), 1, lead.ID, rep.ID)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.Equal(t, 1, notifier.calls)
	})

	t.Run("manual override replaces a previous assignment", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		first := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "First"})
		second := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Second", IsOnLeave: true})

		svc := NewService(store, store, nil, log)
		_, err := svc.Assign(context.Background(), 1, lead.ID, first.ID)
		require.NoError(t, err)

		// Manual choice wins even for a rep suggestions would filter out.
		result, err := svc.Assign(context.Background(), 1, lead.ID, second.ID)
		require.NoError(t, err)
		assert.True(t, result.Changed)

		stored, err := store.GetContact(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, *stored.AssignedRepID)
	})

	t.Run("notification failure never rolls back the assignment", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		rep := store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Rex"})
		notifier := &recordingNotifier{fail: true}

		svc := NewService(store, store, notifier, log)
		result, err := svc.Assign(context.Background(), 1, lead.ID, rep.ID)
		require.NoError(t, err)
		assert.True(t, result.Changed)

		stored, err := store.GetContact(context.Background(), 1, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, rep.ID, *stored.AssignedRepID)
	})

	t.Run("cross-tenant rep behaves as missing", func(t *testing.T) {
		store := memory.New()
		lead := seedLead(store, 1)
		rep := store.PutRep(&domain.SalesRep{TenantID: 2, Name: "Other"})

		svc := NewService(store, store, nil, log)
		_, err := svc.Assign(context.Background(), 1, lead.ID, rep.ID)
		assert.True(t, domain.IsNotFound(err))
	})
}
