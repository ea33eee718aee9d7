package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/room"
	"github.com/wfunc/room-server/internal/utils"
	"go.uber.org/zap"
)

// authService 访客认证服务实现
// 没有账号体系：登录即签发一个新的玩家ID和令牌对，
// 玩家身份的生命周期就是令牌的生命周期。
type authService struct {
	jwtManager *utils.JWTManager
	log        *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		jwtManager: jwtManager,
		log:        log,
	}
}

// GuestLogin 访客登录，签发新的玩家身份
func (s *authService) GuestLogin(ctx context.Context, req *GuestLoginRequest) (*AuthResponse, error) {
	if req.Name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "玩家名不能为空")
	}
	name := req.Name
	if len(name) > room.MaxNameLen {
		name = name[:room.MaxNameLen]
	}
	color := req.Color
	if color == "" {
		color = room.DefaultColor
	}
	if len(color) > room.MaxColorLen {
		color = color[:room.MaxColorLen]
	}

	playerID := uuid.New().String()

	accessToken, err := s.jwtManager.GenerateAccessToken(playerID, name, color)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "生成访问令牌失败")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(playerID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "生成刷新令牌失败")
	}

	s.log.Info("Guest logged in",
		zap.String("playerID", playerID),
		zap.String("name", name))

	return &AuthResponse{
		PlayerID:     playerID,
		Name:         name,
		Color:        color,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry("access").Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// RefreshToken 刷新访问令牌，玩家ID保持不变
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.New(apperrors.ErrTokenExpired, "刷新令牌已过期")
		}
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "无效的刷新令牌")
	}
	if claims.TokenType != "refresh" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "不是刷新令牌")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(claims.PlayerID, claims.Name, claims.Color)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "生成访问令牌失败")
	}

	s.log.Info("Token refreshed", zap.String("playerID", claims.PlayerID))

	return &AuthResponse{
		PlayerID:     claims.PlayerID,
		Name:         claims.Name,
		Color:        claims.Color,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry("access").Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken 验证访问令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.New(apperrors.ErrTokenExpired, "令牌已过期")
		}
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "无效的令牌")
	}
	if claims.TokenType != "access" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "不是访问令牌")
	}

	return &TokenClaims{
		PlayerID:  claims.PlayerID,
		Name:      claims.Name,
		Color:     claims.Color,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}
