package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/memory"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grantEpoch = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestMicrogrants(t *testing.T) (MicrograntService, *testClock, *domain.User) {
	t.Helper()
	mem := memory.New()
	owner, err := domain.NewUser("Ada", "ada@example.com", "password123")
	require.NoError(t, err)
	owner.HashedPassword = "hash"
	require.NoError(t, mem.Users().Create(context.Background(), owner))

	clock := newTestClock(grantEpoch)
	svc, err := NewMicrograntService(mem.Microgrants(), clock.Now, discardLogger())
	require.NoError(t, err)
	return svc, clock, owner
}

func TestNewMicrograntService_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewMicrograntService(nil, nil, discardLogger())
	assert.Error(t, err)

	_, err = NewMicrograntService(memory.New().Microgrants(), nil, nil)
	assert.Error(t, err)
}

func TestMicrograntService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, owner := newTestMicrogrants(t)

	grant, err := svc.Create(ctx, owner.ID, CreateMicrograntInput{
		BusinessName:    "  Corner bakery ",
		Description:     "A second oven",
		AmountRequested: decimal.NewFromInt(2500),
	})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, grant.OwnerID)
	assert.Equal(t, "Ada", grant.OwnerName)
	assert.Equal(t, "Corner bakery", grant.BusinessName)
	assert.Equal(t, domain.MicrograntStatusPending, grant.Status)
	assert.Equal(t, grantEpoch, grant.CreatedAt)

	got, err := svc.Get(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, got.ID)
	assert.Equal(t, "Ada", got.OwnerName)
}

func TestMicrograntService_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, owner := newTestMicrogrants(t)

	tests := []struct {
		name  string
		input CreateMicrograntInput
		field string
	}{
		{"zero amount", CreateMicrograntInput{BusinessName: "Shop", AmountRequested: decimal.Zero}, "amount_requested"},
		{"negative amount", CreateMicrograntInput{BusinessName: "Shop", AmountRequested: decimal.NewFromInt(-5)}, "amount_requested"},
		{"blank business", CreateMicrograntInput{BusinessName: "   ", AmountRequested: decimal.NewFromInt(5)}, "business_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, owner.ID, tt.input)
			require.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	grants, err := svc.List(ctx, store.MicrograntFilter{})
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestMicrograntService_CreateUnknownOwner(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestMicrogrants(t)

	_, err := svc.Create(context.Background(), uuid.New(), CreateMicrograntInput{
		BusinessName:    "Ghost shop",
		AmountRequested: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMicrograntService_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock, owner := newTestMicrogrants(t)

	first, err := svc.Create(ctx, owner.ID, CreateMicrograntInput{BusinessName: "Bakery", AmountRequested: decimal.NewFromInt(100)})
	require.NoError(t, err)
	clock.Set(grantEpoch.Add(time.Hour))
	second, err := svc.Create(ctx, owner.ID, CreateMicrograntInput{BusinessName: "Florist", AmountRequested: decimal.NewFromInt(200)})
	require.NoError(t, err)

	grants, err := svc.List(ctx, store.MicrograntFilter{Limit: 1000, Offset: -1})
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, second.ID, grants[0].ID, "newest first")
	assert.Equal(t, first.ID, grants[1].ID)

	grants, err = svc.List(ctx, store.MicrograntFilter{OwnerID: uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, grants)

	grants, err = svc.List(ctx, store.MicrograntFilter{Status: domain.MicrograntStatusFunded})
	require.NoError(t, err)
	assert.Empty(t, grants)

	_, err = svc.List(ctx, store.MicrograntFilter{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMicrograntService_GetMissing(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestMicrogrants(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
