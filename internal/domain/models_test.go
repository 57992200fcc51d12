package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourse_ChargeAmount(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		discount string
		want     string
	}{
		{"twenty percent off", "100", "20", "80"},
		{"no discount", "499", "0", "499"},
		{"rounds half up to cents", "19.99", "15", "16.99"},
		{"fractional discount", "1000", "12.5", "875"},
		{"full discount", "250", "100", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Course{
				Price:    decimal.RequireFromString(tt.price),
				Discount: decimal.RequireFromString(tt.discount),
			}
			assert.True(t, decimal.RequireFromString(tt.want).Equal(c.ChargeAmount()),
				"got %s", c.ChargeAmount())
		})
	}
}

func TestPurchaseStatus_Transitions(t *testing.T) {
	assert.True(t, PurchaseStatusPending.CanTransitionTo(PurchaseStatusCompleted))
	assert.True(t, PurchaseStatusPending.CanTransitionTo(PurchaseStatusFailed))
	assert.False(t, PurchaseStatusPending.CanTransitionTo(PurchaseStatusPending))
	assert.False(t, PurchaseStatusCompleted.CanTransitionTo(PurchaseStatusFailed))
	assert.False(t, PurchaseStatusFailed.CanTransitionTo(PurchaseStatusCompleted))
	assert.False(t, PurchaseStatusPending.IsTerminal())
}

func TestIDSet_With(t *testing.T) {
	var s IDSet
	s = s.With("u1")
	s = s.With("u2")
	s = s.With("u1")

	assert.Equal(t, IDSet{"u1", "u2"}, s)
	assert.True(t, s.Contains("u2"))
	assert.False(t, s.Contains("u3"))
}

func TestIDSet_ScanValue(t *testing.T) {
	v, err := IDSet{"c1", "c2"}.Value()
	require.NoError(t, err)

	var s IDSet
	require.NoError(t, s.Scan([]byte(v.(string))))
	assert.Equal(t, IDSet{"c1", "c2"}, s)

	empty, err := IDSet(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}

func TestMetadata(t *testing.T) {
	id := uuid.New()
	m := MetadataFromMap(map[string]string{
		MetadataPurchaseID: id.String(),
		MetadataUserID:     " user_1 ",
		MetadataCourseID:   "course_1",
	})

	assert.True(t, m.Complete())
	assert.Equal(t, "user_1", m.UserID)

	got, err := m.ParsePurchaseID()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = Metadata{PurchaseID: "not-a-uuid"}.ParsePurchaseID()
	assert.Error(t, err)
	_, err = Metadata{}.ParsePurchaseID()
	assert.Error(t, err)
	assert.False(t, Metadata{PurchaseID: id.String()}.Complete())
}

func TestEventKinds(t *testing.T) {
	var events = []Event{
		CheckoutCompleted{ID: "evt_1"},
		PaymentFailed{ID: "evt_2"},
		Unrecognized{ID: "evt_3", Type: "charge.refunded"},
	}

	assert.Equal(t, EventKindCheckoutCompleted, events[0].Kind())
	assert.Equal(t, EventKindPaymentFailed, events[1].Kind())
	assert.Equal(t, EventKind("charge.refunded"), events[2].Kind())
	assert.Equal(t, "evt_3", events[2].EventID())
}
