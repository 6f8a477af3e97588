// Package auth 管理员登录使用的 JWT 与密码哈希
package auth

import (
	"errors"
	"time"

	"torrent-monitor/app/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("无效的令牌")
	ErrRefreshTooEarly = errors.New("令牌仍然有效，无需刷新")
)

// Claims JWT声明结构
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTService 签发和校验令牌
type JWTService struct {
	secret []byte
	expire time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		expire: time.Duration(cfg.ExpireTime) * time.Hour,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// GenerateToken 返回令牌及其过期时间
func (j *JWTService) GenerateToken(userID uint, username string) (string, time.Time, error) {
	now := j.now()
	expireAt := now.Add(j.expire)
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expireAt, nil
}

// ValidateToken 校验签名、有效期和签发者
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshToken 只在令牌 1 小时内过期时签发新令牌
func (j *JWTService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}
	if claims.ExpiresAt.Time.Sub(j.now()) > time.Hour {
		return "", time.Time{}, ErrRefreshTooEarly
	}
	return j.GenerateToken(claims.UserID, claims.Username)
}
