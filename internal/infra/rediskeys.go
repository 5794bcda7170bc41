package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных сервиса в Redis
	RedisNamespace = "helix"
)

// Ключи (состояние)
const (
	// RedisKeyRecoveryLock — SetNX-лок стартового sweep'а, чтобы
	// реплики не добирали одних и тех же сирот параллельно
	RedisKeyRecoveryLock = RedisNamespace + ":audit:lock:recovery-sweep"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanBatchSealed — трансляция запечатанных батчей дашбордам
	RedisChanBatchSealed = RedisNamespace + ":audit:batch-sealed"
)

// GetVerifyCacheKey — ключ кэша спот-проверки по событию
func GetVerifyCacheKey(eventID string) string {
	return fmt.Sprintf("%s:audit:verify:%s", RedisNamespace, eventID)
}
