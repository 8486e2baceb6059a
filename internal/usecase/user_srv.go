package usecase

import (
	"context"

	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/dto/request"
	"mahjong-booking/internal/dto/response"
	"mahjong-booking/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*response.UserResponse, error)
	GetTransactions(ctx context.Context, userID uuid.UUID, req request.PaginatedRequest) (*response.PaginatedResponse[response.TransactionResponse], error)
}

type userService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewUserService(repo *repository.Repository, log *zap.Logger) UserService {
	return &userService{
		repo: repo,
		log:  log.With(zap.String("service", "user")),
	}
}

func (us *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*response.UserResponse, error) {
	user, err := us.repo.User.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("Failed to get profile", err)
	}
	if user == nil {
		return nil, apperror.NotFound("User")
	}

	resp := response.UserToResponse(user)
	return &resp, nil
}

func (us *userService) GetTransactions(ctx context.Context, userID uuid.UUID, req request.PaginatedRequest) (*response.PaginatedResponse[response.TransactionResponse], error) {
	txns, err := us.repo.Transaction.FindByUserID(ctx, userID, req.Limit(), req.Offset())
	if err != nil {
		return nil, apperror.Internal("Failed to get transactions", err)
	}

	total, err := us.repo.Transaction.CountByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("Failed to count transactions", err)
	}

	data := make([]response.TransactionResponse, len(txns))
	for i, t := range txns {
		data[i] = response.TransactionToResponse(t)
	}

	us.log.Debug("Transactions listed", zap.String("user_id", userID.String()), zap.Int64("total", total))
	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}
