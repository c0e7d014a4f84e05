package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/platform/logger"
	"github.com/soaringjerry/surveyhub/internal/services"
)

type seedFile struct {
	Departments []string     `json:"departments"`
	Users       []seedUser   `json:"users"`
	Surveys     []seedSurvey `json:"surveys"`
}

type seedUser struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Department  string `json:"department"`
}

type seedSurvey struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Questions   []seedQuestion `json:"questions"`
	AssignTo    []string       `json:"assign_to"`
}

type seedQuestion struct {
	Type    string       `json:"type"`
	Title   string       `json:"title"`
	IsOpen  bool         `json:"is_open"`
	IsSkip  bool         `json:"is_skip"`
	Options []seedOption `json:"options"`
}

type seedOption struct {
	Role        string `json:"role"`
	Description string `json:"description"`
	IsOpen      bool   `json:"is_open"`
	IsSkip      bool   `json:"is_skip"`
}

// seedIfEmpty loads departments, accounts and surveys from a JSON file on the
// first start. A catalog that already holds surveys is left untouched.
func seedIfEmpty(ctx context.Context, path string, auth *services.AuthService, catalog *services.CatalogService,
	assignments *services.AssignmentService, log *logger.Logger) error {
	existing, err := catalog.ListSurveys(ctx)
	if err != nil {
		return fmt.Errorf("seed: list surveys: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: read %s: %w", path, err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("seed: decode %s: %w", path, err)
	}

	admin := services.Actor{UserID: 0, Role: models.RoleAdmin, IP: "127.0.0.1"}
	depts := map[string]int64{}
	for _, name := range seed.Departments {
		d, err := auth.CreateDepartment(ctx, admin, name)
		if err != nil {
			return fmt.Errorf("seed: department %q: %w", name, err)
		}
		depts[name] = d.ID
	}

	for _, sv := range seed.Surveys {
		created, err := catalog.CreateSurvey(ctx, admin, sv.Name, sv.Description)
		if err != nil {
			return fmt.Errorf("seed: survey %q: %w", sv.Name, err)
		}
		for i, sq := range sv.Questions {
			q, err := catalog.AddQuestion(ctx, admin, &models.Question{
				SurveyID: created.ID,
				Type:     models.QuestionType(sq.Type),
				Title:    sq.Title,
				IsOpen:   sq.IsOpen,
				IsSkip:   sq.IsSkip,
				SortKey:  i + 1,
			})
			if err != nil {
				return fmt.Errorf("seed: question %q: %w", sq.Title, err)
			}
			for j, so := range sq.Options {
				if _, err := catalog.AddOption(ctx, admin, &models.Option{
					QuestionID:  q.ID,
					Role:        models.OptionRole(so.Role),
					Description: so.Description,
					SortKey:     j + 1,
					IsOpen:      so.IsOpen,
					IsSkip:      so.IsSkip,
				}); err != nil {
					return fmt.Errorf("seed: option %q: %w", so.Description, err)
				}
			}
		}
		if sv.Status != "" && sv.Status != services.SurveyDraft {
			if err := catalog.SetSurveyStatus(ctx, admin, created.ID, sv.Status); err != nil {
				return fmt.Errorf("seed: survey status: %w", err)
			}
		}
		for _, dept := range sv.AssignTo {
			id, ok := depts[dept]
			if !ok {
				return fmt.Errorf("seed: survey %q assigned to unknown department %q", sv.Name, dept)
			}
			if _, err := assignments.AssignToDepartment(ctx, admin, created.ID, id); err != nil {
				return fmt.Errorf("seed: assign %q: %w", sv.Name, err)
			}
		}
	}

	// users last so department backfill picks up the seeded assignments
	for _, su := range seed.Users {
		deptID := int64(0)
		if su.Department != "" {
			id, ok := depts[su.Department]
			if !ok {
				return fmt.Errorf("seed: user %q in unknown department %q", su.Username, su.Department)
			}
			deptID = id
		}
		if _, err := auth.CreateUser(ctx, admin, services.NewUser{
			Username:     su.Username,
			Password:     su.Password,
			DisplayName:  su.DisplayName,
			Role:         su.Role,
			DepartmentID: deptID,
		}); err != nil {
			return fmt.Errorf("seed: user %q: %w", su.Username, err)
		}
	}
	log.Info("seed loaded", "file", path, "departments", len(seed.Departments),
		"surveys", len(seed.Surveys), "users", len(seed.Users))
	return nil
}
