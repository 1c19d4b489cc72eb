package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateInstanceID 生成进程实例ID
// 优先使用环境变量 HUB_INSTANCE_ID，否则生成UUID
func GenerateInstanceID() string {
	if id := os.Getenv("HUB_INSTANCE_ID"); id != "" {
		return id
	}

	// 生成格式：battery-hub-{hostname}-{uuid}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("battery-hub-%s-%s", hostname, shortUUID)
}
