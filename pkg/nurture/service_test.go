package nurture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
	"github.com/jordanlanch/salespilot/pkg/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// recordingTransport captures sent messages.
type recordingTransport struct {
	sent []sentMessage
	fail bool
}

type sentMessage struct {
	recipient, subject, body string
}

func (tr *recordingTransport) Send(ctx context.Context, recipient, subject, body string) error {
	if tr.fail {
		return errors.New("provider rejected message")
	}
	tr.sent = append(tr.sent, sentMessage{recipient, subject, body})
	return nil
}

type fixture struct {
	store     *memory.Store
	transport *recordingTransport
	svc       *Service
	contact   *domain.Contact
	template  *domain.NurtureTemplate
}

var enrolledAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	transport := &recordingTransport{}
	svc := NewService(store, store, store, store, transport, fixedClock{enrolledAt}, logger.New("error"))

	contact := store.PutContact(&domain.Contact{
		TenantID: 1, Name: "Ada Lovelace", Email: "ada@example.com",
		Company: "Analytical Engines", Type: domain.ContactTypeLead, Source: "referral",
	})
	template := store.PutTemplate(&domain.NurtureTemplate{
		TenantID: 1,
		Name:     "welcome",
		Steps: []domain.NurtureStep{
			{Order: 1, DayOffset: 0, Subject: "Welcome {{first_name}}", Body: "Hi {{name}} from {{company}}"},
			{Order: 2, DayOffset: 3, Subject: "Checking in", Body: "Still interested?"},
			{Order: 3, DayOffset: 7, Subject: "Last call", Body: "Final follow-up"},
		},
	})
	return &fixture{store: store, transport: transport, svc: svc, contact: contact, template: template}
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active enrollment with full pending schedule", func(t *testing.T) {
		f := newFixture(t)

		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentActive, enrollment.Status)
		assert.Equal(t, 3, enrollment.TotalSteps)
		assert.Equal(t, 0, enrollment.CompletedSteps)
		assert.Equal(t, 7, enrollment.EnrolledByUserID)

		steps, err := f.store.ListByEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		require.Len(t, steps, 3)

		wantTimes := []time.Time{
			enrolledAt,
			enrolledAt.Add(3 * 24 * time.Hour),
			enrolledAt.Add(7 * 24 * time.Hour),
		}
		for i, step := range steps {
			assert.Equal(t, domain.StepPending, step.Status)
			assert.Equal(t, wantTimes[i], step.ScheduledAt)
			assert.Equal(t, i+1, step.StepOrder)
		}
	})

	t.Run("second open enrollment in same template conflicts", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		_, err = f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		assert.True(t, domain.IsConflict(err))
	})

	t.Run("re-enrollment allowed after cancel", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, 1, first.ID))

		second, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("vendor contact is rejected", func(t *testing.T) {
		f := newFixture(t)
		vendor := f.store.PutContact(&domain.Contact{TenantID: 1, Type: domain.ContactTypeVendor})

		_, err := f.svc.Enroll(ctx, 1, 7, vendor.ID, f.template.ID)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("empty template is rejected", func(t *testing.T) {
		f := newFixture(t)
		empty := f.store.PutTemplate(&domain.NurtureTemplate{TenantID: 1, Name: "empty"})

		_, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, empty.ID)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("unknown template returns not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, 999)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()

	t.Run("pause and resume round-trip", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		require.NoError(t, f.svc.Pause(ctx, 1, enrollment.ID))
		got, err := f.store.GetEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentPaused, got.Status)

		// Idempotent pause.
		require.NoError(t, f.svc.Pause(ctx, 1, enrollment.ID))

		require.NoError(t, f.svc.Resume(ctx, 1, enrollment.ID))
		got, err = f.store.GetEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentActive, got.Status)
	})

	t.Run("paused enrollment is skipped by the claim query", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Pause(ctx, 1, enrollment.ID))

		claimed, err := f.store.ClaimDue(ctx, enrolledAt.Add(30*24*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("terminal states reject pause and resume", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, 1, enrollment.ID))

		assert.True(t, domain.IsConflict(f.svc.Pause(ctx, 1, enrollment.ID)))
		assert.True(t, domain.IsConflict(f.svc.Resume(ctx, 1, enrollment.ID)))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels enrollment and open steps, preserving sent history", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		// Deliver the first step, then cancel.
		claimed, err := f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, f.svc.Dispatch(ctx, claimed[0]))

		require.NoError(t, f.svc.Cancel(ctx, 1, enrollment.ID))

		steps, err := f.store.ListByEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StepSent, steps[0].Status)
		assert.Equal(t, domain.StepCancelled, steps[1].Status)
		assert.Equal(t, domain.StepCancelled, steps[2].Status)
	})

	t.Run("cancelling twice is a no-op", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		require.NoError(t, f.svc.Cancel(ctx, 1, enrollment.ID))
		require.NoError(t, f.svc.Cancel(ctx, 1, enrollment.ID))
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("renders placeholders and marks the step sent", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		claimed, err := f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, f.svc.Dispatch(ctx, claimed[0]))

		require.Len(t, f.transport.sent, 1)
		assert.Equal(t, "ada@example.com", f.transport.sent[0].recipient)
		assert.Equal(t, "Welcome Ada", f.transport.sent[0].subject)
		assert.Equal(t, "Hi Ada Lovelace from Analytical Engines", f.transport.sent[0].body)

		got, err := f.store.GetEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.CompletedSteps)

		contact, err := f.store.GetContact(ctx, 1, f.contact.ID)
		require.NoError(t, err)
		require.NotNil(t, contact.LastContactedAt)
	})

	t.Run("transport failure marks the step failed without blocking later steps", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		f.transport.fail = true
		claimed, err := f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, f.svc.Dispatch(ctx, claimed[0]))

		steps, err := f.store.ListByEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StepFailed, steps[0].Status)
		assert.NotEmpty(t, steps[0].LastError)

		// Later steps of the same enrollment are still claimable.
		f.transport.fail = false
		claimed, err = f.store.ClaimDue(ctx, enrolledAt.Add(30*24*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, claimed, 2)
	})

	t.Run("all steps delivered completes the enrollment", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		claimed, err := f.store.ClaimDue(ctx, enrolledAt.Add(30*24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, claimed, 3)
		for _, step := range claimed {
			require.NoError(t, f.svc.Dispatch(ctx, step))
		}

		got, err := f.store.GetEnrollment(ctx, 1, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("cancellation racing a claim retires the step unsent", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		claimed, err := f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, f.store.UpdateStatus(ctx, 1, enrollment.ID, domain.EnrollmentCancelled, nil))
		require.NoError(t, f.svc.Dispatch(ctx, claimed[0]))

		assert.Empty(t, f.transport.sent)
		step, err := f.store.GetStep(ctx, claimed[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StepCancelled, step.Status)
	})

	t.Run("pause racing a claim releases the step for later", func(t *testing.T) {
		f := newFixture(t)
		enrollment, err := f.svc.Enroll(ctx, 1, 7, f.contact.ID, f.template.ID)
		require.NoError(t, err)

		claimed, err := f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, f.svc.Pause(ctx, 1, enrollment.ID))
		require.NoError(t, f.svc.Dispatch(ctx, claimed[0]))

		assert.Empty(t, f.transport.sent)
		step, err := f.store.GetStep(ctx, claimed[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StepPending, step.Status)

		// After resume the step is immediately due again.
		require.NoError(t, f.svc.Resume(ctx, 1, enrollment.ID))
		claimed, err = f.store.ClaimDue(ctx, enrolledAt, 1)
		require.NoError(t, err)
		assert.Len(t, claimed, 1)
	})
}

func TestRender(t *testing.T) {
	contact := &domain.Contact{Name: "Ada Lovelace", Company: "Analytical Engines", Source: "referral"}

	assert.Equal(t, "Hi Ada", Render("Hi {{first_name}}", contact))
	assert.Equal(t, "Ada Lovelace at Analytical Engines via referral",
		Render("{{name}} at {{company}} via {{source}}", contact))
	assert.Equal(t, "no placeholders", Render("no placeholders", contact))
}
