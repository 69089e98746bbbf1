// Package poa implements the proof-of-access engine: deterministic proof
// construction, challenge issuance and verification, reputation
// arithmetic, and rarity-weighted reward pricing.
package poa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// maxSampledBlocks bounds verification work independent of file size.
const maxSampledBlocks = 5

// BlockFetcher retrieves object data from the storage daemon.
type BlockFetcher interface {
	Refs(ctx context.Context, cid string) ([]string, error)
	Block(ctx context.Context, cid string) ([]byte, error)
	Cat(ctx context.Context, cid string) ([]byte, error)
}

func fnv1a(data []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(data)
	return h.Sum32()
}

// SampleIndices derives the deterministic block sample for a salt over n
// blocks. The first index is fnv1a(salt) mod n; each following index
// advances by fnv1a(salt||acc) mod n where acc accumulates
// sha256("block_<seed>_<salt>") digests. The walk stops when it runs off
// the end or five indices have been produced. Identical inputs yield the
// identical sequence on every machine.
func SampleIndices(salt string, n int) []int {
	if n <= 0 {
		return nil
	}
	seed := int(fnv1a([]byte(salt)) % uint32(n))
	indices := []int{seed}
	var acc []byte
	for len(indices) < maxSampledBlocks {
		sum := sha256.Sum256([]byte("block_" + strconv.Itoa(seed) + "_" + salt))
		acc = append(acc, sum[:]...)
		step := int(fnv1a(append([]byte(salt), acc...)) % uint32(n))
		seed += step
		if seed >= n {
			break
		}
		indices = append(indices, seed)
	}
	return indices
}

// ComputeProof computes the expected proof digest for (salt, cid) given
// the ordered block children of cid. With no blocks the whole object is
// hashed with the salt appended. Otherwise the sampled blocks are fetched
// in parallel, each hashed as sha256(block||salt), the hex digests
// concatenated in index order, and that string hashed once more. Any
// failed fetch fails the whole computation.
func ComputeProof(ctx context.Context, fetcher BlockFetcher, salt, cid string, blockCids []string) (string, error) {
	if len(blockCids) == 0 {
		obj, err := fetcher.Cat(ctx, cid)
		if err != nil {
			return "", errors.Wrapf(err, "could not fetch object %s", cid)
		}
		sum := sha256.Sum256(append(obj, salt...))
		return hex.EncodeToString(sum[:]), nil
	}

	indices := SampleIndices(salt, len(blockCids))
	blockHexes := make([]string, len(indices))
	var wg sync.WaitGroup
	errs := make(chan error, len(indices))
	for i, blockIdx := range indices {
		wg.Add(1)
		go func(slot, blockIdx int) {
			defer wg.Done()
			blockCid := blockCids[blockIdx]
			block, err := fetcher.Block(ctx, blockCid)
			if err != nil {
				errs <- errors.Wrapf(err, "could not fetch block %s", blockCid)
				return
			}
			sum := sha256.Sum256(append(block, salt...))
			blockHexes[slot] = hex.EncodeToString(sum[:])
		}(i, blockIdx)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return "", err
	}

	concat := strings.Join(blockHexes, "")
	sum := sha256.Sum256([]byte(concat))
	return hex.EncodeToString(sum[:]), nil
}
