package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	txErr        error
	getCalls     int
	txCalls      int
	lastGetInput *dynamodb.GetItemInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getCalls++
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.txCalls++
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func makeStateItem(pk, sk, data string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":   &types.AttributeValueMemberS{Value: pk},
		"SK":   &types.AttributeValueMemberS{Value: sk},
		"data": &types.AttributeValueMemberS{Value: data},
	}
}

func mustNewStore(t *testing.T, db *fakeDynamo) *StateStore {
	t.Helper()
	s, err := New(db, "test-table")
	require.NoError(t, err)
	return s
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)

	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestGetReservation_AbsentYieldsZeroValue(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	s := mustNewStore(t, db)

	state, err := s.GetReservation(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, domain.ReservationState{}, state)
	require.NotNil(t, db.lastGetInput)
	require.NotNil(t, db.lastGetInput.ConsistentRead)
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestGetReservation_DecodesDurableItem(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeStateItem("CONV#abc", "STATE#reservation", `{"partySize":4,"time":"March 14 at 07:00 PM","status":"complete"}`),
	}}
	s := mustNewStore(t, db)

	state, err := s.GetReservation(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, state.PartySize)
	require.Equal(t, 4, *state.PartySize)
	require.Equal(t, "March 14 at 07:00 PM", state.Time)
	require.Equal(t, domain.ReservationComplete, state.Status)
}

func TestGetReservation_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	s := mustNewStore(t, db)

	_, err := s.GetReservation(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "reservation")
}

func TestGetReservation_MalformedDocument(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeStateItem("CONV#abc", "STATE#reservation", `{broken`),
	}}
	s := mustNewStore(t, db)

	_, err := s.GetReservation(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}

func TestSetThenGet_ObservesStagedWrite(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	s := mustNewStore(t, db)

	size := 2
	staged := domain.ReservationState{PartySize: &size, Status: domain.ReservationCollecting}
	require.NoError(t, s.SetReservation(context.Background(), "abc", staged))

	got, err := s.GetReservation(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, staged, got)
	require.Zero(t, db.getCalls, "staged reads must not hit DynamoDB")
}

func TestSetReservation_EmptyConversationID(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{})
	err := s.SetReservation(context.Background(), " ", domain.ReservationState{})
	require.Error(t, err)
}

func TestFlush_NothingStagedIsNoOp(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)

	require.NoError(t, s.Flush(context.Background()))
	require.Zero(t, db.txCalls)
}

func TestFlush_CommitsAllStagedItemsInOneTransaction(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	ctx := context.Background()

	size := 4
	require.NoError(t, s.SetReservation(ctx, "abc", domain.ReservationState{
		PartySize: &size,
		Status:    domain.ReservationCollecting,
	}))
	require.NoError(t, s.SetDialog(ctx, "abc", domain.DialogRecord{
		Dialog: "reservation",
		Stage:  "awaiting_time",
	}))

	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, db.txCalls, "both records must commit in one transaction")
	require.Len(t, db.lastTxInput.TransactItems, 2)

	seen := map[string]bool{}
	for _, item := range db.lastTxInput.TransactItems {
		require.NotNil(t, item.Put)
		pk, err := strAttr(item.Put.Item, "PK")
		require.NoError(t, err)
		require.Equal(t, "CONV#abc", pk)
		sk, err := strAttr(item.Put.Item, "SK")
		require.NoError(t, err)
		seen[sk] = true
		_, err = strAttr(item.Put.Item, "data")
		require.NoError(t, err)
	}
	require.True(t, seen["STATE#reservation"])
	require.True(t, seen["STATE#dialog"])

	// The buffer is cleared: a second flush writes nothing.
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, db.txCalls)
}

func TestFlush_ErrorKeepsWritesStaged(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("transaction cancelled")}
	s := mustNewStore(t, db)
	ctx := context.Background()

	require.NoError(t, s.SetDialog(ctx, "abc", domain.DialogRecord{Dialog: "reservation"}))
	require.Error(t, s.Flush(ctx))
	require.Equal(t, 1, db.txCalls)

	db.txErr = nil
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 2, db.txCalls, "failed writes must survive for a retried turn")
	require.Len(t, db.lastTxInput.TransactItems, 1)
}
