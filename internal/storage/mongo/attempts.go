package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
)

type attemptDocument struct {
	attempt.Attempt `bson:",inline"`
	ActiveKey       *string `bson:"active_key,omitempty"`
}

func toDocument(a *attempt.Attempt) attemptDocument {
	doc := attemptDocument{Attempt: *a.Clone()}
	if a.Status.IsActive() {
		key := a.UserID + "\x00" + a.QuizID
		doc.ActiveKey = &key
	}
	return doc
}

func (s *Store) Create(ctx context.Context, a *attempt.Attempt) error {
	doc := toDocument(a)
	doc.Version = 1
	if _, err := s.attempts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return attempt.ErrActiveAttemptExists
		}
		return err
	}
	a.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*attempt.Attempt, error) {
	var doc attemptDocument
	err := s.attempts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("attempt %s not found", id)
		}
		return nil, err
	}
	return &doc.Attempt, nil
}

func (s *Store) FindActive(ctx context.Context, userID, quizID string) (*attempt.Attempt, error) {
	var doc attemptDocument
	err := s.attempts.FindOne(ctx, bson.M{"active_key": userID + "\x00" + quizID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &doc.Attempt, nil
}

func (s *Store) ListByUserQuiz(ctx context.Context, userID, quizID string) ([]*attempt.Attempt, error) {
	return s.findAttempts(ctx,
		bson.M{"user_id": userID, "quiz_id": quizID},
		findOptions(bson.D{{Key: "attempt_number", Value: 1}}, 0))
}

// Update replaces the document only while the stored version still equals
// a.Version.
func (s *Store) Update(ctx context.Context, a *attempt.Attempt) error {
	doc := toDocument(a)
	doc.Version = a.Version + 1

	res, err := s.attempts.ReplaceOne(ctx, bson.M{"_id": a.ID, "version": a.Version}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return attempt.ErrActiveAttemptExists
		}
		return err
	}
	if res.MatchedCount == 0 {
		count, err := s.attempts.CountDocuments(ctx, bson.M{"_id": a.ID}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("attempt %s not found", a.ID)
		}
		return attempt.ErrVersionConflict
	}

	a.Version = doc.Version
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses []attempt.Status, after *attempt.Cursor, limit int) (attempt.Page, error) {
	if len(statuses) == 0 {
		return attempt.Page{}, nil
	}

	filter := bson.M{"status": statusFilter(statuses)}
	if after != nil {
		filter["$or"] = bson.A{
			bson.M{"started_at": bson.M{"$gt": after.StartedAt}},
			bson.M{"started_at": after.StartedAt, "_id": bson.M{"$gt": after.ID}},
		}
	}
	fetch := limit
	if limit > 0 {
		fetch = limit + 1
	}
	cur, err := s.attempts.Find(ctx, filter, findOptions(bson.D{{Key: "started_at", Value: 1}, {Key: "_id", Value: 1}}, fetch))
	if err != nil {
		return attempt.Page{}, err
	}
	defer cur.Close(ctx)

	page := attempt.Page{Attempts: make([]*attempt.Attempt, 0)}
	var (
		read int
		last *attempt.Cursor
	)
	for cur.Next(ctx) {
		if limit > 0 && read == limit {
			page.Next = last
			break
		}
		read++
		if position, ok := rawCursor(cur.Current); ok {
			last = position
		}

		var doc attemptDocument
		if err := cur.Decode(&doc); err != nil {
			page.Malformed++
			continue
		}
		a := doc.Attempt
		page.Attempts = append(page.Attempts, &a)
	}
	return page, cur.Err()
}

// rawCursor reads the paging keys without decoding the whole document.
func rawCursor(raw bson.Raw) (*attempt.Cursor, bool) {
	id, ok := raw.Lookup("_id").StringValueOK()
	if !ok {
		return nil, false
	}
	startedAt, ok := raw.Lookup("started_at").TimeOK()
	if !ok {
		return nil, false
	}
	return &attempt.Cursor{StartedAt: startedAt.UTC(), ID: id}, true
}

func (s *Store) DeleteStale(ctx context.Context, statuses []attempt.Status, lastActiveBefore time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	res, err := s.attempts.DeleteMany(ctx, bson.M{
		"status":         statusFilter(statuses),
		"last_active_at": bson.M{"$lt": lastActiveBefore},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) findAttempts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*attempt.Attempt, error) {
	cur, err := s.attempts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	attempts := make([]*attempt.Attempt, 0)
	for cur.Next(ctx) {
		var doc attemptDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a := doc.Attempt
		attempts = append(attempts, &a)
	}
	return attempts, cur.Err()
}
