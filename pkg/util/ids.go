package util

import (
	"github.com/bwmarrin/snowflake"
)

// ValidSnowflake reports whether s is a positive decimal snowflake id, the form chat
// platforms use for users and guilds.
func ValidSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	id, err := snowflake.ParseString(s)
	return err == nil && id > 0
}
