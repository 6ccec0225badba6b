package cache

import (
	"database/sql"
	"fmt"

	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/notify"
)

type TemplateStore struct {
	db  *sql.DB
	hub *notify.Hub
}

func NewTemplateStore(db *sql.DB, hub *notify.Hub) *TemplateStore {
	return &TemplateStore{db: db, hub: hub}
}

const templateCols = `id, title, description, assigned_to, points, recurrence, subtasks, created_at`

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.ChoreTemplate, error) {
	var t model.ChoreTemplate
	var assignedTo, recurrence, subtasks string

	err := scanner.Scan(&t.ID, &t.Title, &t.Description, &assignedTo, &t.Points, &recurrence, &subtasks, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(assignedTo, &t.AssignedTo); err != nil {
		return nil, err
	}
	if err := decodeJSON(recurrence, &t.Recurrence); err != nil {
		return nil, err
	}
	if err := decodeJSON(subtasks, &t.Subtasks); err != nil {
		return nil, err
	}
	return &t, nil
}

const templateUpsert = `INSERT INTO chore_templates (` + templateCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title, description = excluded.description,
		assigned_to = excluded.assigned_to, points = excluded.points,
		recurrence = excluded.recurrence, subtasks = excluded.subtasks`

func templateArgs(t model.ChoreTemplate) ([]any, error) {
	assignedTo, err := encodeJSON(t.AssignedTo)
	if err != nil {
		return nil, err
	}
	recurrence, err := encodeJSON(t.Recurrence)
	if err != nil {
		return nil, err
	}
	subtasks, err := encodeJSON(t.Subtasks)
	if err != nil {
		return nil, err
	}
	return []any{t.ID, t.Title, t.Description, assignedTo, t.Points, recurrence, subtasks, t.CreatedAt.UTC()}, nil
}

func (s *TemplateStore) Upsert(t model.ChoreTemplate) error {
	args, err := templateArgs(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	if _, err := s.db.Exec(templateUpsert, args...); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityTemplates, Action: "updated", ID: t.ID})
	return nil
}

func (s *TemplateStore) GetByID(id string) (*model.ChoreTemplate, error) {
	row := s.db.QueryRow(`SELECT `+templateCols+` FROM chore_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *TemplateStore) List() ([]model.ChoreTemplate, error) {
	rows, err := s.db.Query(`SELECT ` + templateCols + ` FROM chore_templates ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChoreTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM chore_templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityTemplates, Action: "deleted", ID: id})
	return nil
}

func (s *TemplateStore) ReplaceAll(templates []model.ChoreTemplate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chore_templates`); err != nil {
		return fmt.Errorf("clear templates: %w", err)
	}
	for _, t := range templates {
		args, err := templateArgs(t)
		if err != nil {
			return fmt.Errorf("encode template: %w", err)
		}
		if _, err := tx.Exec(templateUpsert, args...); err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityTemplates, Action: "replaced"})
	return nil
}

func (s *TemplateStore) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM chore_templates`); err != nil {
		return fmt.Errorf("delete all templates: %w", err)
	}
	s.hub.Publish(notify.Event{Entity: EntityTemplates, Action: "replaced"})
	return nil
}
