// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"crypto/md5"
	"encoding/binary"
)

// DefaultTotalShards is the shard space used when a configuration does not
// specify one.
const DefaultTotalShards = 10000

// Sharder maps an input string to a bucket in [0, totalShards).
// Implementations must be safe for concurrent use.
type Sharder interface {
	Shard(input string, totalShards int) int
}

// MD5Sharder buckets inputs using the first four bytes of their MD5 digest.
type MD5Sharder struct{}

// Shard implements Sharder.
func (MD5Sharder) Shard(input string, totalShards int) int {
	sum := md5.Sum([]byte(input))
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(totalShards))
}

// DeterministicSharder returns fixed shards from a lookup table. Unknown
// inputs land in shard 0 and totalShards is ignored.
type DeterministicSharder map[string]int

// Shard implements Sharder.
func (s DeterministicSharder) Shard(input string, _ int) int {
	return s[input]
}
