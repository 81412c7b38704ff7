package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"otakumori/internal/config"
	"otakumori/internal/model"
	"otakumori/internal/repository"
	"otakumori/pkg/dayclock"

	"github.com/cespare/xxhash/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestService 每日任务
type QuestService struct {
	db        *gorm.DB
	cfg       *config.Config
	clock     *dayclock.Clock
	locker    Locker
	ledger    *LedgerService
	questRepo *repository.QuestRepository
	userRepo  *repository.UserRepository
}

func NewQuestService(db *gorm.DB, cfg *config.Config, clock *dayclock.Clock, ledger *LedgerService, locker Locker) *QuestService {
	if locker == nil {
		locker = NopLocker{}
	}
	return &QuestService{
		db:        db,
		cfg:       cfg,
		clock:     clock,
		locker:    locker,
		ledger:    ledger,
		questRepo: repository.NewQuestRepository(db),
		userRepo:  repository.NewUserRepository(db),
	}
}

type QuestList struct {
	Today        []*model.QuestAssignment `json:"today"`
	Backlog      []*model.QuestAssignment `json:"backlog"`
	PetalBalance int64                    `json:"petalBalance"`
	CurrentDay   string                   `json:"currentDay"`
}

type QuestCompletion struct {
	QuestKey      string        `json:"questId"`
	PetalsAwarded int64         `json:"petalsAwarded"`
	Unlocks       model.Unlocks `json:"unlocks"`
	LoreFragments []string      `json:"loreFragments"`
	Affinity      int           `json:"affinity"`
}

// PickForDay 按 xxhash(day:key) 排序取前 n 个，同一天对所有用户结果相同
func PickForDay(quests []*model.Quest, day string, n int) []*model.Quest {
	type ranked struct {
		quest *model.Quest
		rank  uint64
	}
	items := make([]ranked, 0, len(quests))
	for _, q := range quests {
		items = append(items, ranked{quest: q, rank: xxhash.Sum64String(day + ":" + q.Key)})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].quest.Key < items[j].quest.Key
	})
	if n > len(items) {
		n = len(items)
	}
	picked := make([]*model.Quest, 0, n)
	for _, it := range items[:n] {
		picked = append(picked, it.quest)
	}
	return picked
}

// EnsureDaily 保证用户在 day 这天有任务分配
// 已有分配时只读不写，可以在每次请求任务列表时调用
func (s *QuestService) EnsureDaily(ctx context.Context, userID int64, day string) ([]*model.QuestAssignment, error) {
	count, err := s.questRepo.CountForDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("查询任务分配失败: %w", err)
	}

	if count == 0 {
		quests, err := s.questRepo.ListActiveQuests(ctx)
		if err != nil {
			return nil, fmt.Errorf("查询任务目录失败: %w", err)
		}
		picks := PickForDay(quests, day, s.cfg.Business.DailyQuestCount)
		assignments := make([]*model.QuestAssignment, 0, len(picks))
		for _, q := range picks {
			assignments = append(assignments, &model.QuestAssignment{
				UserID:   userID,
				QuestKey: q.Key,
				Day:      day,
			})
		}
		if err := s.questRepo.CreateAssignments(ctx, assignments); err != nil {
			return nil, fmt.Errorf("创建任务分配失败: %w", err)
		}
		slog.Debug("已生成每日任务", "user_id", userID, "day", day, "count", len(assignments))
	}

	return s.questRepo.ListForDay(ctx, userID, day)
}

// List 今日任务 + 积压任务
func (s *QuestService) List(ctx context.Context, userID int64) (*QuestList, error) {
	today := s.clock.Today()

	todays, err := s.EnsureDaily(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	backlog, err := s.questRepo.ListBacklog(ctx, userID, today, s.cfg.Business.QuestBacklogLimit)
	if err != nil {
		return nil, fmt.Errorf("查询积压任务失败: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &QuestList{
		Today:        todays,
		Backlog:      backlog,
		PetalBalance: user.PetalBalance,
		CurrentDay:   today,
	}, nil
}

// Complete 领取任务奖励：标记完成、发放花瓣、写入解锁内容
func (s *QuestService) Complete(ctx context.Context, userID int64, questKey, idempotencyKey string) (*QuestCompletion, error) {
	questKey = strings.TrimSpace(questKey)
	if questKey == "" {
		return nil, fmt.Errorf("%w: questId is required", ErrValidation)
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	if _, err := s.EnsureDaily(ctx, userID, s.clock.Today()); err != nil {
		return nil, err
	}

	unlock, err := lockUser(ctx, s.locker, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var completion *QuestCompletion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.ledger.LockForPosting(ctx, tx, userID, idempotencyKey)
		if err != nil {
			return err
		}
		used, err := s.questRepo.CompletedWithKey(ctx, tx, userID, idempotencyKey)
		if err != nil {
			return fmt.Errorf("查询幂等键失败: %w", err)
		}
		if used {
			return fmt.Errorf("%w: idempotency key %q", ErrDuplicateRequest, idempotencyKey)
		}

		assignment, err := s.questRepo.GetOpenAssignment(ctx, tx, userID, questKey)
		if err != nil {
			if !errors.Is(err, repository.ErrAssignmentNotFound) {
				return fmt.Errorf("查询任务分配失败: %w", err)
			}
			assigned, herr := s.questRepo.HasAssignment(ctx, tx, userID, questKey)
			if herr != nil {
				return fmt.Errorf("查询任务分配失败: %w", herr)
			}
			if assigned {
				return fmt.Errorf("%w: quest %s", ErrAlreadyClaimed, questKey)
			}
			return fmt.Errorf("%w: quest %s is not assigned", ErrNotFound, questKey)
		}

		quest, err := s.questRepo.GetQuest(ctx, tx, questKey)
		if err != nil {
			if errors.Is(err, repository.ErrQuestNotFound) {
				return fmt.Errorf("%w: quest %s", ErrNotFound, questKey)
			}
			return err
		}

		done, err := s.questRepo.MarkCompleted(ctx, tx, assignment.ID, s.clock.Now(), idempotencyKey)
		if err != nil {
			return fmt.Errorf("更新任务状态失败: %w", err)
		}
		if !done {
			return fmt.Errorf("%w: quest %s", ErrAlreadyClaimed, questKey)
		}

		if quest.RewardPetals > 0 {
			if _, err := s.ledger.CreditTx(ctx, tx, Posting{
				UserID:         userID,
				Amount:         quest.RewardPetals,
				Reason:         model.ReasonQuestComplete,
				IdempotencyKey: idempotencyKey,
			}); err != nil {
				return err
			}
		}

		prefs, err := decodePreferences(user.Preferences)
		if err != nil {
			return err
		}
		applyQuestUnlocks(prefs, quest)
		raw, err := json.Marshal(prefs)
		if err != nil {
			return fmt.Errorf("序列化用户偏好失败: %w", err)
		}
		if err := s.userRepo.UpdatePreferences(ctx, tx, userID, datatypes.JSON(raw)); err != nil {
			return fmt.Errorf("更新用户偏好失败: %w", err)
		}

		completion = &QuestCompletion{
			QuestKey:      questKey,
			PetalsAwarded: quest.RewardPetals,
			Unlocks:       prefs.Unlocks,
			LoreFragments: prefs.LoreFragments,
			Affinity:      prefs.Affinity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("任务奖励已领取", "user_id", userID, "quest", questKey, "petals", completion.PetalsAwarded)
	return completion, nil
}

func decodePreferences(raw datatypes.JSON) (*model.Preferences, error) {
	prefs := &model.Preferences{}
	if len(raw) == 0 || string(raw) == "null" {
		return normalizePreferences(prefs), nil
	}
	if err := json.Unmarshal(raw, prefs); err != nil {
		return nil, fmt.Errorf("解析用户偏好失败: %w", err)
	}
	return normalizePreferences(prefs), nil
}

func normalizePreferences(p *model.Preferences) *model.Preferences {
	if p.Unlocks.Emotes == nil {
		p.Unlocks.Emotes = []string{}
	}
	if p.Unlocks.Titles == nil {
		p.Unlocks.Titles = []string{}
	}
	if p.LoreFragments == nil {
		p.LoreFragments = []string{}
	}
	return p
}

func applyQuestUnlocks(p *model.Preferences, q *model.Quest) {
	if q.UnlockEmote != "" && !slices.Contains(p.Unlocks.Emotes, q.UnlockEmote) {
		p.Unlocks.Emotes = append(p.Unlocks.Emotes, q.UnlockEmote)
	}
	if q.UnlockTitle != "" && !slices.Contains(p.Unlocks.Titles, q.UnlockTitle) {
		p.Unlocks.Titles = append(p.Unlocks.Titles, q.UnlockTitle)
	}
	if q.LoreFragment != "" && !slices.Contains(p.LoreFragments, q.LoreFragment) {
		p.LoreFragments = append(p.LoreFragments, q.LoreFragment)
	}
	p.Affinity += q.Affinity
}
