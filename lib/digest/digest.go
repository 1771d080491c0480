// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes domain-separated BLAKE3 hashes.
//
// Each use has its own 32-byte key, so identical bytes hashed for
// different purposes never collide. The keys are the ASCII domain name
// zero-padded to 32 bytes; changing one invalidates every hash already
// computed in that domain.
package digest

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// String returns the hex encoding.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// Short returns the first 12 hex characters, for log lines.
func (hash Hash) Short() string {
	return hash.String()[:12]
}

type domainKey [32]byte

var (
	snapshotDomainKey = domainKey{
		'l', 'i', 's', 'a', '.', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	feedbackDomainKey = domainKey{
		'l', 'i', 's', 'a', '.', 'f', 'e', 'e', 'd', 'b', 'a', 'c', 'k', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Snapshot hashes an encoded checkpoint payload.
func Snapshot(payload []byte) Hash {
	return keyedHash(snapshotDomainKey, payload)
}

// Feedback hashes review feedback text for repeat detection.
func Feedback(text string) Hash {
	return keyedHash(feedbackDomainKey, []byte(text))
}

func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
