package service

import (
	"context"
	"errors"
	"fmt"

	"otakumori/internal/model"
	"otakumori/internal/repository"

	"gorm.io/gorm"
)

// Profile 认证中间件解析出的用户信息
type Profile struct {
	ExternalID string
	Email      string
	Username   string
	Role       string
}

type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{userRepo: repository.NewUserRepository(db)}
}

// Ensure 首次访问时创建用户和钱包，之后直接返回已有记录
func (s *UserService) Ensure(ctx context.Context, p Profile) (*model.User, error) {
	if p.ExternalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrValidation)
	}
	user, err := s.userRepo.GetOrCreate(ctx, &model.User{
		ExternalID: p.ExternalID,
		Email:      p.Email,
		Username:   p.Username,
		Role:       p.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := s.userRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, externalID)
		}
		return nil, err
	}
	return user, nil
}
