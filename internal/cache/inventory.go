package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ProfileKeyPrefix    = "profile:%s"
	AttributesKeyPrefix = "session:attrs:%s"
	RevokedKeyPrefix    = "blacklist:%s"
)

const (
	ProfileTTL    = 5 * time.Minute
	AttributesTTL = 5 * time.Minute
)

func ProfileKey(uid string) string {
	return fmt.Sprintf(ProfileKeyPrefix, uid)
}

func AttributesKey(uid string) string {
	return fmt.Sprintf(AttributesKeyPrefix, uid)
}

func RevokedKey(jti string) string {
	return fmt.Sprintf(RevokedKeyPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateProfile(ctx context.Context, uid string) {
	Invalidate(ctx, ProfileKey(uid))
}

func InvalidateAttributes(ctx context.Context, uid string) {
	Invalidate(ctx, AttributesKey(uid))
}
