package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/opentdb"
)

type fakeRepo struct {
	definitions map[string]Definition

	getCalls  int
	saveCalls int
	listCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{definitions: make(map[string]Definition)}
}

func (f *fakeRepo) GetDefinition(_ context.Context, quizID string) (Definition, error) {
	f.getCalls++
	item, ok := f.definitions[quizID]
	if !ok {
		return Definition{}, NotFound(quizID)
	}
	return item, nil
}

func (f *fakeRepo) SaveDefinition(_ context.Context, definition Definition) error {
	f.saveCalls++
	f.definitions[definition.QuizID] = definition
	return nil
}

func (f *fakeRepo) ListDefinitions(_ context.Context, limit int) ([]Metadata, error) {
	f.listCalls++
	out := make([]Metadata, 0, len(f.definitions))
	for _, item := range f.definitions {
		out = append(out, item.Metadata())
	}
	if limit > 0 && limit < len(out) {
		return out[:limit], nil
	}
	return out, nil
}

type fakeRemote struct {
	items map[string]Definition

	getCalls    int
	setCalls    int
	deleteCalls int
	getErr      error
}

func (f *fakeRemote) GetDefinition(_ context.Context, quizID string) (Definition, bool, error) {
	f.getCalls++
	if f.getErr != nil {
		return Definition{}, false, f.getErr
	}
	item, ok := f.items[quizID]
	return item, ok, nil
}

func (f *fakeRemote) SetDefinition(_ context.Context, definition Definition, _ time.Duration) error {
	f.setCalls++
	f.items[definition.QuizID] = definition
	return nil
}

func (f *fakeRemote) DeleteDefinition(_ context.Context, quizID string) error {
	f.deleteCalls++
	delete(f.items, quizID)
	return nil
}

func sampleDefinition(quizID string) Definition {
	return Definition{
		QuizID:   quizID,
		Title:    "Capitals",
		Status:   StatusPublished,
		IsActive: true,
		Questions: []Question{
			{
				PublicQuestion: PublicQuestion{
					Question: "Capital of France?",
					Options:  []Option{{Letter: "A", Text: "Paris"}, {Letter: "B", Text: "Rome"}},
				},
				CorrectIndex: 0,
			},
		},
	}
}

func TestCatalogCachesRepositoryReads(t *testing.T) {
	repo := newFakeRepo()
	repo.definitions["qz_1"] = sampleDefinition("qz_1")
	catalog := NewCatalog(repo)

	for i := 0; i < 3; i++ {
		if _, err := catalog.GetDefinition(context.Background(), "qz_1"); err != nil {
			t.Fatalf("GetDefinition returned error: %v", err)
		}
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected 1 repository read, got %d", repo.getCalls)
	}
}

func TestCatalogCacheExpiresAfterTTL(t *testing.T) {
	repo := newFakeRepo()
	repo.definitions["qz_1"] = sampleDefinition("qz_1")
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	catalog := NewCatalog(repo, WithCacheTTL(time.Minute), WithClock(func() time.Time { return now }))

	if _, err := catalog.GetDefinition(context.Background(), "qz_1"); err != nil {
		t.Fatalf("GetDefinition returned error: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := catalog.GetDefinition(context.Background(), "qz_1"); err != nil {
		t.Fatalf("GetDefinition returned error: %v", err)
	}
	if repo.getCalls != 2 {
		t.Fatalf("expected cache to expire, repository reads = %d", repo.getCalls)
	}
}

func TestCatalogUsesRemoteCacheBeforeRepository(t *testing.T) {
	repo := newFakeRepo()
	remote := &fakeRemote{items: map[string]Definition{"qz_1": sampleDefinition("qz_1")}}
	catalog := NewCatalog(repo, WithRemoteCache(remote))

	definition, err := catalog.GetDefinition(context.Background(), "qz_1")
	if err != nil {
		t.Fatalf("GetDefinition returned error: %v", err)
	}
	if definition.Title != "Capitals" {
		t.Fatalf("unexpected definition: %+v", definition)
	}
	if repo.getCalls != 0 {
		t.Fatalf("expected no repository reads, got %d", repo.getCalls)
	}
}

func TestCatalogFallsBackWhenRemoteCacheFails(t *testing.T) {
	repo := newFakeRepo()
	repo.definitions["qz_1"] = sampleDefinition("qz_1")
	remote := &fakeRemote{items: map[string]Definition{}, getErr: errors.New("redis down")}
	catalog := NewCatalog(repo, WithRemoteCache(remote))

	if _, err := catalog.GetDefinition(context.Background(), "qz_1"); err != nil {
		t.Fatalf("GetDefinition returned error: %v", err)
	}
	if repo.getCalls != 1 || remote.setCalls != 1 {
		t.Fatalf("expected repository read and remote fill, got get=%d set=%d", repo.getCalls, remote.setCalls)
	}
}

func TestCatalogMissingQuizIsNotFound(t *testing.T) {
	catalog := NewCatalog(newFakeRepo())

	_, err := catalog.GetDefinition(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogSaveNormalizesAndInvalidates(t *testing.T) {
	repo := newFakeRepo()
	remote := &fakeRemote{items: map[string]Definition{}}
	catalog := NewCatalog(repo, WithRemoteCache(remote))

	saved, err := catalog.SaveDefinition(context.Background(), sampleDefinition(""))
	if err != nil {
		t.Fatalf("SaveDefinition returned error: %v", err)
	}
	if saved.QuizID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", saved)
	}
	if saved.Questions[0].Points != 1 || saved.Questions[0].QuestionID == "" {
		t.Fatalf("expected normalized question, got %+v", saved.Questions[0])
	}
	if remote.deleteCalls != 1 {
		t.Fatalf("expected remote invalidation, got %d", remote.deleteCalls)
	}
}

func TestCatalogSaveRejectsInvalidDefinition(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)

	definition := sampleDefinition("qz_bad")
	definition.Questions[0].CorrectIndex = 5

	_, err := catalog.SaveDefinition(context.Background(), definition)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.saveCalls != 0 {
		t.Fatalf("expected no save, got %d", repo.saveCalls)
	}
}

func TestCatalogImportBuildsPublishedDefinition(t *testing.T) {
	repo := newFakeRepo()
	var requested int
	fetcher := func(_ context.Context, amount int) ([]opentdb.RawQuestion, error) {
		requested = amount
		return []opentdb.RawQuestion{
			{Question: "1+1?", CorrectAnswer: "2", IncorrectAnswers: []string{"3", "4", "5"}, Difficulty: "easy"},
			{Question: "2+2?", CorrectAnswer: "4", IncorrectAnswers: []string{"1"}, Difficulty: "easy"},
		}, nil
	}
	catalog := NewCatalog(repo, WithFetcher(fetcher))

	definition, err := catalog.Import(context.Background(), ImportInput{QuestionCount: 2, PassingScore: 60})
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if requested != 2 {
		t.Fatalf("expected fetch of 2 questions, got %d", requested)
	}
	if definition.Status != StatusPublished || !definition.IsActive {
		t.Fatalf("expected published active quiz, got %+v", definition)
	}
	if definition.MaxScore() != 2 {
		t.Fatalf("expected max score 2, got %v", definition.MaxScore())
	}
	if repo.saveCalls != 1 {
		t.Fatalf("expected one save, got %d", repo.saveCalls)
	}
}

func TestCatalogImportWithoutFetcherFails(t *testing.T) {
	catalog := NewCatalog(newFakeRepo())
	if _, err := catalog.Import(context.Background(), ImportInput{QuestionCount: 1}); err == nil {
		t.Fatalf("expected error without fetcher")
	}
}
