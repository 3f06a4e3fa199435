package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// Catalog reads the topic catalog and learners' completion records.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) TopicsUpToGrade(ctx context.Context, grade string) ([]domain.Topic, error) {
	limit := domain.GradeIndex(grade)
	grades := make([]string, 0, limit+1)
	for i := 0; i <= limit && i < len(domain.GradeOrder); i++ {
		grades = append(grades, domain.GradeOrder[i])
	}

	rows, err := c.pool.Query(ctx, `
		SELECT id, title, grade, order_index, prerequisites
		FROM topics
		WHERE grade = ANY($1)`, grades)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var t domain.Topic
		var rawPrereqs []byte
		if err := rows.Scan(&t.ID, &t.Title, &t.Grade, &t.OrderIndex, &rawPrereqs); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		if len(rawPrereqs) > 0 {
			if err := json.Unmarshal(rawPrereqs, &t.Prerequisites); err != nil {
				return nil, fmt.Errorf("unmarshal prerequisites: %w", err)
			}
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}

	// Grade order is domain-defined (K1..G5), not lexicographic, so sort here.
	sort.SliceStable(topics, func(i, j int) bool {
		gi, gj := domain.GradeIndex(topics[i].Grade), domain.GradeIndex(topics[j].Grade)
		if gi != gj {
			return gi < gj
		}
		return topics[i].OrderIndex < topics[j].OrderIndex
	})
	return topics, nil
}

func (c *Catalog) CompletionsForUser(ctx context.Context, userID string) ([]domain.TopicCompletion, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT user_id, topic_id, content_completed, quest_completed
		FROM topic_completions
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	defer rows.Close()

	var records []domain.TopicCompletion
	for rows.Next() {
		var r domain.TopicCompletion
		if err := rows.Scan(&r.UserID, &r.TopicID, &r.ContentCompleted, &r.QuestCompleted); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return records, nil
}
