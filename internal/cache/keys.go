package cache

import (
	"fmt"
)

func AuthSessionKey(token string) string {
	return fmt.Sprintf("auth:session:%s", token)
}

func DeviceStorageKey(deviceID, name string) string {
	return fmt.Sprintf("device:%s:%s", deviceID, name)
}

func ResetTokenKey(tokenID string) string {
	return fmt.Sprintf("auth:reset:%s", tokenID)
}
