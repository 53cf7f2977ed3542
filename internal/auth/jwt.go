package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"processhub/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 令牌校验错误
var (
	ErrTokenRevoked   = errors.New("令牌已失效")
	ErrInvalidToken   = errors.New("无效的令牌")
	ErrWrongTokenType = errors.New("令牌类型错误")
)

// TokenTypeAccess 访问令牌
const TokenTypeAccess = "access"

// JWTService 访问令牌校验，签发由认证服务负责
type JWTService struct {
	secretKey   []byte
	issuer      string
	redisClient redis.UniversalClient // 黑名单，可为 nil
}

// NewJWTService 创建 JWT 校验服务
func NewJWTService(secretKey, issuer string, redisClient redis.UniversalClient) *JWTService {
	return &JWTService{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		redisClient: redisClient,
	}
}

// TokenClaims JWT 声明，与认证服务签发的字段一致
type TokenClaims struct {
	UserID    string   `json:"uid"`
	TenantID  string   `json:"tid"`
	Roles     []string `json:"roles"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// ValidateToken 验证并解析访问令牌
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if s.IsTokenBlacklisted(ctx, tokenString) {
		return nil, ErrTokenRevoked
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// IsTokenBlacklisted 检查令牌是否已被认证服务吊销
func (s *JWTService) IsTokenBlacklisted(ctx context.Context, tokenString string) bool {
	if s.redisClient == nil {
		return false
	}

	key := fmt.Sprintf("blacklist:token:%s", tokenString)
	exists, err := s.redisClient.Exists(ctx, key).Result()
	if err != nil {
		// Redis 故障时放行，避免全部请求失败
		logger.WithContext(ctx).Warn("检查令牌黑名单失败", zap.Error(err))
		return false
	}
	return exists > 0
}

// ExtractTokenFromBearer 从 Bearer 令牌中提取纯令牌字符串
func ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "Bearer "
	if len(bearerToken) > len(prefix) && strings.EqualFold(bearerToken[:len(prefix)], prefix) {
		return strings.TrimSpace(bearerToken[len(prefix):])
	}
	return strings.TrimSpace(bearerToken)
}
