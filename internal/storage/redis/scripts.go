package redis

import "github.com/redis/go-redis/v9"

// incrementScoreScript creates the score row on first use, records arrival
// order, and applies the delta atomically.
//
// KEYS[1] scores hash, KEYS[2] arrival list
// ARGV[1] user id, ARGV[2] delta, ARGV[3] ttl in ms (0 for none)
var incrementScoreScript = redis.NewScript(`
local created = redis.call("HSETNX", KEYS[1], ARGV[1], 0)
if created == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
end
local total = redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
	redis.call("PEXPIRE", KEYS[2], ttl)
end
return total
`)

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1]
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
