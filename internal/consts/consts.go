package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId  = "request_id"
	AdminSub   = "admin_sub"
	JWTToken   = "token_ctx"
	LockPrefix = "tradeflow:lock:"

	// token 黑名单
	JwtBlackListPrefix = "jwt_black_list:"

	// 管理接口重复请求的判定间隔
	DuplicateThreshold = time.Second
)
