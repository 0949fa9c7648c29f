package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"popsies-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Catalog caches answer keys in Redis (hash per quiz) and falls back to a loader on cache miss.
// Answers are stored as: HSET quiz:{quizID}:answers {questionID} {optionID}
// Points are stored as:  HSET quiz:{quizID}:points  {questionID} {points}
type Catalog struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *domain.LockedSource
}

func NewCatalog(client *redis.Client, loader QuizLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    domain.NewSeededSource(time.Now().UnixNano()),
	}
}

// AnswerKey returns the correct option and point value of one question.
func (c *Catalog) AnswerKey(ctx context.Context, quizID, questionID string) (domain.AnswerKey, error) {
	pipe := c.client.Pipeline()
	optionCmd := pipe.HGet(ctx, answersKey(quizID), questionID)
	pointsCmd := pipe.HGet(ctx, pointsKey(quizID), questionID)
	countCmd := pipe.HLen(ctx, answersKey(quizID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.AnswerKey{}, err
	}

	if countCmd.Val() > 0 {
		optionID, err := optionCmd.Result()
		if errors.Is(err, redis.Nil) {
			return domain.AnswerKey{}, domain.ErrQuestionNotFound
		}
		if err != nil {
			return domain.AnswerKey{}, err
		}
		// a question whose points entry is gone is reloaded instead of guessed
		if points, ok := parsePoints(pointsCmd); ok {
			return domain.AnswerKey{
				QuestionID:      questionID,
				CorrectOptionID: optionID,
				PointValue:      points,
			}, nil
		}
	}

	quiz, err := c.fill(ctx, quizID)
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return quiz.AnswerKey(questionID)
}

// TotalQuestions returns how many questions the quiz has.
func (c *Catalog) TotalQuestions(ctx context.Context, quizID string) (int, error) {
	n, err := c.client.HLen(ctx, answersKey(quizID)).Result()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return int(n), nil
	}
	quiz, err := c.fill(ctx, quizID)
	if err != nil {
		return 0, err
	}
	return len(quiz.Questions), nil
}

// Invalidate drops the cached answer key of a quiz, e.g. after it was edited.
func (c *Catalog) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, answersKey(quizID), pointsKey(quizID)).Err()
}

// fill loads a quiz once per key across concurrent callers and writes its
// answer key into Redis.
func (c *Catalog) fill(ctx context.Context, quizID string) (domain.Quiz, error) {
	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if len(quiz.Questions) == 0 {
			return quiz, nil
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.TxPipeline()
		for _, q := range quiz.Questions {
			pipe.HSet(ctx, answersKey(quizID), q.ID, q.CorrectOptionID())
			pipe.HSet(ctx, pointsKey(quizID), q.ID, domain.NormalizePoints(q.Points))
		}
		if ttl > 0 {
			pipe.Expire(ctx, answersKey(quizID), ttl)
			pipe.Expire(ctx, pointsKey(quizID), ttl)
		}
		// cache write failures only cost a reload next time
		_, _ = pipe.Exec(ctx)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func answersKey(quizID string) string {
	return "quiz:" + quizID + ":answers"
}

func pointsKey(quizID string) string {
	return "quiz:" + quizID + ":points"
}

func parsePoints(cmd *redis.StringCmd) (int, bool) {
	raw, err := cmd.Result()
	if err != nil {
		return 0, false
	}
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return p, true
}
