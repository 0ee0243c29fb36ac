package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"refcheck/models"
	"refcheck/storage"
	"refcheck/storage/storagetest"
)

func newWork(title, doi string) *models.Work {
	return &models.Work{
		Type:    "article-journal",
		Title:   title,
		DOI:     models.StrPtr(doi),
		Authors: []models.Author{{Family: "He", Given: "Kaiming"}, {Family: "Zhang", Given: "Xiangyu"}},
	}
}

func TestCreateAndGetWork(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	w := newWork("Deep Residual Learning", "10.1109/cvpr.2016.90")
	require.NoError(t, repo.CreateWork(ctx, w))
	require.NotEmpty(t, w.ID)

	got, err := repo.GetWork(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deep Residual Learning", got.Title)
	require.Len(t, got.Authors, 2)
	assert.Equal(t, "He", got.Authors[0].Family)
	assert.Equal(t, "Zhang", got.Authors[1].Family)
	assert.Equal(t, models.PeerReviewUnknown, got.PeerReviewed)
	assert.Nil(t, got.ConsensusScore)
}

func TestGetWorkNotFound(t *testing.T) {
	repo := storagetest.NewRepository(t)
	_, err := repo.GetWork(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateWorkDuplicateDOI(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateWork(ctx, newWork("A", "10.1000/abc")))
	err := repo.CreateWork(ctx, newWork("B", "10.1000/abc"))
	assert.ErrorIs(t, err, storage.ErrDuplicateDOI)

	// Werke ohne DOI kollidieren nie.
	require.NoError(t, repo.CreateWork(ctx, &models.Work{Title: "C"}))
	require.NoError(t, repo.CreateWork(ctx, &models.Work{Title: "D"}))
}

func TestCreateWorkUniqueIndexMapsToDuplicateDOI(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := storage.NewRepository(db)

	// Ein zweiter Import schreibt dieselbe DOI zwischen FindByDOI und INSERT.
	raced := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:concurrent_import", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "works" {
			return
		}
		raced = true
		assert.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(newWork("Concurrent", "10.1000/race")).Error)
	}))

	err := repo.CreateWork(context.Background(), newWork("Original", "10.1000/race"))
	assert.True(t, raced)
	assert.ErrorIs(t, err, storage.ErrDuplicateDOI)
}

func TestFindBySignatureAndSetPDFLink(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	w := &models.Work{Title: "No DOI here", Signature: models.StrPtr("abc123")}
	require.NoError(t, repo.CreateWork(ctx, w))

	got, err := repo.FindBySignature(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	_, err = repo.FindBySignature(ctx, "other")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.SetPDFLink(ctx, w.ID, "https://s3.example/works/x.pdf"))
	got, err = repo.GetWork(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/works/x.pdf", models.Str(got.PDFLink))
	assert.ErrorIs(t, repo.SetPDFLink(ctx, "missing", "x"), storage.ErrNotFound)
}

func TestListWorksNewestFirst(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"old", "mid", "new"} {
		w := &models.Work{Title: title, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, repo.CreateWork(ctx, w))
	}

	works, err := repo.ListWorks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, works, 3)
	assert.Equal(t, "new", works[0].Title)
	assert.Equal(t, "old", works[2].Title)

	limited, err := repo.ListWorks(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordVerification(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	w := newWork("T", "10.1000/xyz")
	require.NoError(t, repo.CreateWork(ctx, w))

	now := time.Now().UTC()
	retracted := true
	checks := []models.Check{
		{WorkID: w.ID, RunID: "r1", CheckType: "doi_exists", Status: models.StatusSuccess, Outcome: models.OutcomeExists, CheckedAt: now},
		{WorkID: w.ID, RunID: "r1", CheckType: "retraction", Status: models.StatusError, Outcome: models.OutcomeRetracted, CheckedAt: now},
	}
	update := &models.ConsensusUpdate{
		Score:         10,
		Retracted:     &retracted,
		PeerReviewed:  models.PeerReviewed,
		CitationCount: models.IntPtr(42),
		VerifiedAt:    now,
	}
	require.NoError(t, repo.RecordVerification(ctx, w.ID, checks, update))

	got, err := repo.GetWork(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConsensusScore)
	assert.Equal(t, 10, *got.ConsensusScore)
	assert.True(t, got.Retracted)
	assert.Equal(t, models.PeerReviewed, got.PeerReviewed)
	assert.Equal(t, 42, *got.CitationCount)
	assert.NotNil(t, got.LastVerifiedAt)

	// Zweiter Batch ohne Update: Werk bleibt, Historie wächst.
	more := []models.Check{
		{WorkID: w.ID, RunID: "r2", CheckType: "doi_exists", Status: models.StatusWarning, Outcome: models.OutcomeUnavailable, CheckedAt: now},
	}
	require.NoError(t, repo.RecordVerification(ctx, w.ID, more, nil))

	history, err := repo.ListChecks(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "r1", history[0].RunID)
	assert.Equal(t, "r2", history[2].RunID)
	assert.Less(t, history[0].ID, history[2].ID)

	again, err := repo.GetWork(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, *again.ConsensusScore)
}

func TestRecordVerificationUnknownWorkRollsBack(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	checks := []models.Check{{WorkID: "ghost", CheckType: "doi_exists", Status: models.StatusSuccess}}
	err := repo.RecordVerification(ctx, "ghost", checks, &models.ConsensusUpdate{Score: 60, VerifiedAt: time.Now()})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := repo.ListChecks(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCardsOldestFirst(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	w := newWork("T", "")
	require.NoError(t, repo.CreateWork(ctx, w))

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateCard(ctx, &models.ClaimCard{WorkID: w.ID, ClaimText: "second", Context: "c", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.CreateCard(ctx, &models.ClaimCard{WorkID: w.ID, ClaimText: "first", Context: "c", CreatedAt: base}))

	cards, err := repo.ListCards(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "first", cards[0].ClaimText)
	assert.NotEmpty(t, cards[0].ID)
}

func TestStaleWorks(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()

	never := &models.Work{Title: "never"}
	fresh := &models.Work{Title: "fresh"}
	require.NoError(t, repo.CreateWork(ctx, never))
	require.NoError(t, repo.CreateWork(ctx, fresh))

	now := time.Now().UTC()
	require.NoError(t, repo.RecordVerification(ctx, fresh.ID, nil, &models.ConsensusUpdate{Score: 60, VerifiedAt: now}))

	stale, err := repo.StaleWorks(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "never", stale[0].Title)
}

func TestEachWorkBatch(t *testing.T) {
	repo := storagetest.NewRepository(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateWork(ctx, &models.Work{Title: "w"}))
	}

	var batches, total int
	err := repo.EachWorkBatch(ctx, 2, func(ws []models.Work) error {
		batches++
		total += len(ws)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, batches)
	assert.Equal(t, 5, total)
}

type fakePutter struct {
	input *s3.PutObjectInput
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	return &s3.PutObjectOutput{}, nil
}

func TestPDFStoreUpload(t *testing.T) {
	putter := &fakePutter{}
	store := &storage.PDFStore{Client: putter, Bucket: "papers", Endpoint: "https://s3.example.org/"}

	link, err := store.Upload(context.Background(), "abc", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.org/papers/works/abc.pdf", link)
	assert.Equal(t, "works/abc.pdf", *putter.input.Key)
	assert.Equal(t, "application/pdf", *putter.input.ContentType)
}
