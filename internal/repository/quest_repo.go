package repository

import (
	"context"
	"errors"
	"time"

	"otakumori/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrQuestNotFound      = errors.New("任务不存在")
	ErrAssignmentNotFound = errors.New("任务分配不存在")
)

type QuestRepository struct {
	db *gorm.DB
}

func NewQuestRepository(db *gorm.DB) *QuestRepository {
	return &QuestRepository{db: db}
}

func (r *QuestRepository) ListActiveQuests(ctx context.Context) ([]*model.Quest, error) {
	var quests []*model.Quest
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("quest_key ASC").
		Find(&quests).Error
	return quests, err
}

func (r *QuestRepository) GetQuest(ctx context.Context, tx *gorm.DB, key string) (*model.Quest, error) {
	if tx == nil {
		tx = r.db
	}
	var quest model.Quest
	err := tx.WithContext(ctx).Where("quest_key = ?", key).First(&quest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	return &quest, nil
}

func (r *QuestRepository) CountForDay(ctx context.Context, userID int64, day string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.QuestAssignment{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&count).Error
	return count, err
}

// CreateAssignments 重复的 (user, quest, day) 直接忽略
func (r *QuestRepository) CreateAssignments(ctx context.Context, assignments []*model.QuestAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("Quest").
		Create(&assignments).Error
}

func (r *QuestRepository) ListForDay(ctx context.Context, userID int64, day string) ([]*model.QuestAssignment, error) {
	var assignments []*model.QuestAssignment
	err := r.db.WithContext(ctx).
		Preload("Quest").
		Where("user_id = ? AND day = ?", userID, day).
		Order("quest_key ASC").
		Find(&assignments).Error
	return assignments, err
}

// ListBacklog 今天之前未完成的任务，最近的在前
func (r *QuestRepository) ListBacklog(ctx context.Context, userID int64, today string, limit int) ([]*model.QuestAssignment, error) {
	var assignments []*model.QuestAssignment
	err := r.db.WithContext(ctx).
		Preload("Quest").
		Where("user_id = ? AND day < ? AND completed_at IS NULL", userID, today).
		Order("day DESC").
		Order("quest_key ASC").
		Limit(limit).
		Find(&assignments).Error
	return assignments, err
}

// GetOpenAssignment 该任务最近一次未完成的分配
func (r *QuestRepository) GetOpenAssignment(ctx context.Context, tx *gorm.DB, userID int64, questKey string) (*model.QuestAssignment, error) {
	var assignment model.QuestAssignment
	err := tx.WithContext(ctx).
		Where("user_id = ? AND quest_key = ? AND completed_at IS NULL", userID, questKey).
		Order("day DESC").
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *QuestRepository) HasAssignment(ctx context.Context, tx *gorm.DB, userID int64, questKey string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.QuestAssignment{}).
		Where("user_id = ? AND quest_key = ?", userID, questKey).
		Count(&count).Error
	return count > 0, err
}

// MarkCompleted 条件更新，返回 false 表示已经被领取
func (r *QuestRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, assignmentID int64, at time.Time, key string) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&model.QuestAssignment{}).
		Where("id = ? AND completed_at IS NULL", assignmentID).
		Updates(map[string]interface{}{
			"completed_at":   at,
			"completion_key": key,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CompletedWithKey 该幂等键是否已经领取过任务
func (r *QuestRepository) CompletedWithKey(ctx context.Context, tx *gorm.DB, userID int64, key string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.QuestAssignment{}).
		Where("user_id = ? AND completion_key = ?", userID, key).
		Count(&count).Error
	return count > 0, err
}
