package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/exammarker/internal/grading"
)

// JobResult is the final artifact set of a completed grading job.
type JobResult struct {
	MarkedPath string  `json:"marked_path"`
	ReportPath string  `json:"report_path"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Degraded   bool    `json:"degraded"`
	Attempts   int     `json:"attempts"`
}

// ResultStore keeps per-question grades and final job results in Redis so
// any worker or the web layer can read them.
type ResultStore struct {
	client *redis.Client
}

func NewResultStore(redisURL string) (*ResultStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &ResultStore{client: c}, nil
}

func (s *ResultStore) Close() error { return s.client.Close() }

func (s *ResultStore) gradeKey(jobID string, ordinal int) string {
	return fmt.Sprintf("job:%s:question:%d", jobID, ordinal)
}

func (s *ResultStore) resultKey(jobID string) string {
	return fmt.Sprintf("job:%s:result", jobID)
}

// SaveGrade records one question's verdict together with the provider that
// produced it.
func (s *ResultStore) SaveGrade(ctx context.Context, jobID string, g grading.Grade, provider, model string) error {
	m := map[string]interface{}{
		"score":     g.Score,
		"max_score": g.MaxScore,
		"feedback":  g.Feedback,
		"correct":   g.Correct,
	}
	if provider != "" {
		m["provider"] = provider
	}
	if model != "" {
		m["model"] = model
	}
	return s.client.HSet(ctx, s.gradeKey(jobID, g.Ordinal), m).Err()
}

// GetGrade reads one question's verdict back.
func (s *ResultStore) GetGrade(ctx context.Context, jobID string, ordinal int) (grading.Grade, bool, error) {
	res, err := s.client.HGetAll(ctx, s.gradeKey(jobID, ordinal)).Result()
	if err != nil {
		return grading.Grade{}, false, err
	}
	if len(res) == 0 {
		return grading.Grade{}, false, nil
	}
	g := grading.Grade{Ordinal: ordinal, Feedback: res["feedback"]}
	g.Score, _ = strconv.ParseFloat(res["score"], 64)
	g.MaxScore, _ = strconv.ParseFloat(res["max_score"], 64)
	g.Correct, _ = strconv.ParseBool(res["correct"])
	return g, true, nil
}

// SaveResult records the final artifacts of a finished job.
func (s *ResultStore) SaveResult(ctx context.Context, jobID string, r JobResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.resultKey(jobID), b, 0).Err()
}

// GetResult reads the final artifacts of a job, if it finished.
func (s *ResultStore) GetResult(ctx context.Context, jobID string) (JobResult, bool, error) {
	b, err := s.client.Get(ctx, s.resultKey(jobID)).Bytes()
	if err == redis.Nil {
		return JobResult{}, false, nil
	}
	if err != nil {
		return JobResult{}, false, err
	}
	var r JobResult
	if err := json.Unmarshal(b, &r); err != nil {
		return JobResult{}, false, err
	}
	return r, true, nil
}
