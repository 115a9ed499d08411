package jwt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
	"tradeflow/internal/consts"
	"tradeflow/pkg/logger"
)

// Claims 管理接口的 token，Sub 为操作人
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

func BuildClaims(exp time.Time, sub, issuer string) *Claims {
	return &Claims{
		Sub: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}
}

func GenToken(c *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secretKey))
}

// 解析jwt token，只接受 HS256
func ParseToken(jwtStr, secretKey string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(jwtStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func getBlackListKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return consts.JwtBlackListPrefix + hex.EncodeToString(sum[:])
}

// JoinBlackList token 过期前一直有效
func JoinBlackList(ctx context.Context, rc *redis.Client, tokenStr, secretKey string) error {
	claims, err := ParseToken(tokenStr, secretKey)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return rc.SetNX(ctx, getBlackListKey(tokenStr), time.Now().Unix(), ttl).Err()
}

func IsInBlackList(ctx context.Context, rc *redis.Client, token string) bool {
	if rc == nil {
		return false
	}
	n, err := rc.Exists(ctx, getBlackListKey(token)).Result()
	if err != nil {
		logger.Errorf("Redis连接异常:%v", err)
		return false
	}
	return n > 0
}
