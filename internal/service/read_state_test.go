package service_test

import (
	"context"
	"errors"
	"testing"

	"tutoring-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, f *fixture, roomID, sender string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.store.Append(context.Background(), roomID, sender, "message", domain.MessageText)
		require.NoError(t, err)
	}
}

func TestReadState_WatermarkNeverRegresses(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	seedMessages(t, f, "R1", "A", 10)

	for _, upTo := range []int64{5, 3, 8} {
		_, err := f.reads.MarkRead(context.Background(), "B", "R1", upTo)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(8), f.participants.Watermark("R1", "B"))

	unread, err := f.reads.UnreadCount(context.Background(), "B", "R1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)
}

func TestReadState_TwoPartyReceipt(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	a := f.joined(t, "a-1", "A", "R1")
	f.joined(t, "b-1", "B", "R1")

	_, err := f.store.Append(context.Background(), "R1", "A", "hello", domain.MessageText)
	require.NoError(t, err)
	a.Reset()

	watermark, err := f.reads.MarkRead(context.Background(), "B", "R1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), watermark)

	receipts := a.EventsOfType(domain.EventMessagesRead)
	require.Len(t, receipts, 1)
	var payload domain.MessagesReadPayload
	require.NoError(t, receipts[0].Decode(&payload))
	assert.Equal(t, domain.MessagesReadPayload{RoomID: "R1", UpTo: 1, ReadBy: "B"}, payload)
}

func TestReadState_SyncsReaderOtherConnections(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	seedMessages(t, f, "R1", "A", 2)
	phone := f.connect(t, "b-phone", "B")

	_, err := f.reads.MarkRead(context.Background(), "B", "R1", 2)
	require.NoError(t, err)

	assert.Len(t, phone.EventsOfType(domain.EventMessagesRead), 1)
}

func TestReadState_ClampsToLastSeq(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	seedMessages(t, f, "R1", "A", 3)

	watermark, err := f.reads.MarkRead(context.Background(), "B", "R1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), watermark)

	seedMessages(t, f, "R1", "A", 1)
	unread, err := f.reads.UnreadCount(context.Background(), "B", "R1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread, "a new message after the clamp is unread")
}

func TestReadState_Rejections(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	a := f.joined(t, "a-1", "A", "R1")

	_, err := f.reads.MarkRead(context.Background(), "C", "R1", 1)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = f.reads.MarkRead(context.Background(), "A", "R1", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.reads.UnreadCount(context.Background(), "C", "R1")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	assert.Empty(t, a.Events(), "rejected marks broadcast nothing")
	assert.Equal(t, int64(-1), f.participants.Watermark("R1", "C"))
}

func TestReadState_StoreFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	f.participants.AddRoom("R1", "A", "B")
	f.participants.AdvanceWatermarkFunc = func(ctx context.Context, roomID, userID string, upTo int64) (int64, error) {
		return 0, errors.New("deadlock detected")
	}

	_, err := f.reads.MarkRead(context.Background(), "A", "R1", 0)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
