package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceStore persists installed-team credentials.
type WorkspaceStore struct {
	db *gorm.DB
}

func NewWorkspaceStore(g *gorm.DB) *WorkspaceStore {
	return &WorkspaceStore{db: g}
}

// Save creates or refreshes a workspace record after an install.
func (s *WorkspaceStore) Save(ws Workspace) error {
	ws.UpdatedAt = time.Now().UTC()

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "bot_user_id", "admin_user_id", "updated_at",
		}),
	}).Create(&ws).Error
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", ws.TeamID, err)
	}
	return nil
}

func (s *WorkspaceStore) Get(teamID string) (*Workspace, error) {
	var ws Workspace
	err := s.db.Where("team_id = ?", teamID).First(&ws).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("workspace %s not installed", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace %s: %w", teamID, err)
	}
	return &ws, nil
}
