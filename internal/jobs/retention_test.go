package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avitonotify/notify-server-go/internal/model"
)

type mockSentMessageRepo struct {
	messages    []model.SentMessage
	findErr     error
	markedIDs   []int64
	purgedCount int64
}

func (m *mockSentMessageRepo) Log(ctx context.Context, tgChatID, tgMessageID int64) error {
	return nil
}

func (m *mockSentMessageRepo) FindUndeleted(ctx context.Context) ([]model.SentMessage, error) {
	return m.messages, m.findErr
}

func (m *mockSentMessageRepo) MarkDeleted(ctx context.Context, ids []int64) (int64, error) {
	m.markedIDs = append(m.markedIDs, ids...)
	return int64(len(ids)), nil
}

func (m *mockSentMessageRepo) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.purgedCount, nil
}

type mockEventRepo struct {
	purgedCount int64
}

func (m *mockEventRepo) Create(ctx context.Context, params model.CreateEventParams) (*model.PendingEvent, error) {
	return nil, nil
}

func (m *mockEventRepo) GetPendingCandidates(ctx context.Context) ([]model.EventCandidate, error) {
	return nil, nil
}

func (m *mockEventRepo) TryMarkSent(ctx context.Context, id int64, sentTs time.Time) (bool, error) {
	return false, nil
}

func (m *mockEventRepo) MarkSuppressed(ctx context.Context, id int64) error {
	return nil
}

func (m *mockEventRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.purgedCount, nil
}

func (m *mockEventRepo) CountByStatus(ctx context.Context, status model.EventStatus) (int, error) {
	return 0, nil
}

type mockDeleter struct {
	deleted []int64
	failFor map[int64]bool
}

func (m *mockDeleter) DeleteMessage(ctx context.Context, tgChatID, messageID int64) error {
	if m.failFor[messageID] {
		return errors.New("message to delete not found")
	}
	m.deleted = append(m.deleted, messageID)
	return nil
}

func TestRetentionJobRun(t *testing.T) {
	old := time.Now().Add(-40 * 24 * time.Hour)
	fresh := time.Now().Add(-time.Hour)

	t.Run("deletes only aged messages", func(t *testing.T) {
		sent := &mockSentMessageRepo{
			messages: []model.SentMessage{
				{ID: 1, TgChatID: 100, TgMessageID: 11, CreatedTs: old},
				{ID: 2, TgChatID: 100, TgMessageID: 12, CreatedTs: fresh},
			},
		}
		deleter := &mockDeleter{}

		job := NewRetentionJob(sent, &mockEventRepo{}, deleter, 30*24*time.Hour, "0 4 * * *")
		job.Run()

		assert.Equal(t, []int64{11}, deleter.deleted)
		assert.Equal(t, []int64{1}, sent.markedIDs)
	})

	t.Run("failed chat delete keeps the row for the next sweep", func(t *testing.T) {
		sent := &mockSentMessageRepo{
			messages: []model.SentMessage{
				{ID: 1, TgChatID: 100, TgMessageID: 11, CreatedTs: old},
				{ID: 2, TgChatID: 100, TgMessageID: 12, CreatedTs: old},
			},
		}
		deleter := &mockDeleter{failFor: map[int64]bool{11: true}}

		job := NewRetentionJob(sent, &mockEventRepo{}, deleter, 30*24*time.Hour, "0 4 * * *")
		job.Run()

		assert.Equal(t, []int64{12}, deleter.deleted)
		assert.Equal(t, []int64{2}, sent.markedIDs)
	})

	t.Run("list failure skips the sweep", func(t *testing.T) {
		sent := &mockSentMessageRepo{findErr: errors.New("connection refused")}
		deleter := &mockDeleter{}

		job := NewRetentionJob(sent, &mockEventRepo{}, deleter, 30*24*time.Hour, "0 4 * * *")
		job.Run()

		assert.Empty(t, deleter.deleted)
		assert.Empty(t, sent.markedIDs)
	})
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) RunCycle(ctx context.Context) error {
	r.runs.Add(1)
	return nil
}

func TestScanJobRunsImmediatelyAndStops(t *testing.T) {
	runner := &countingRunner{}
	job := NewScanJob(runner, time.Hour, time.Second)

	job.Start()
	// The first cycle fires before the first tick.
	assert.Eventually(t, func() bool {
		return runner.runs.Load() == 1
	}, time.Second, 10*time.Millisecond)

	job.Stop()
	assert.Equal(t, int32(1), runner.runs.Load())
}
