package common

import "fmt"

var (
	// Progress ledger keys
	progressPrefix string = "progress"
	progressPaper  string = "progress:%s:%s" // userId, paperId

	// Session keys
	sessionEvents string = "sessions:events"

	// Gateway keys
	gatewayPrefix   string = "gateway"
	gatewayInitLock string = "gateway:init:%s:lock" // name
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Progress keys
func (rk *redisKeys) ProgressPrefix() string {
	return progressPrefix
}

func (rk *redisKeys) ProgressPaper(userId, paperId string) string {
	return fmt.Sprintf(progressPaper, userId, paperId)
}

// Session keys
func (rk *redisKeys) SessionEvents() string {
	return sessionEvents
}

// Gateway keys
func (rk *redisKeys) GatewayPrefix() string {
	return gatewayPrefix
}

func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}
