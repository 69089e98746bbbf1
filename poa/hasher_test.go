package poa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
)

type fakeFetcher struct {
	blocks map[string][]byte
	objs   map[string][]byte
	refs   map[string][]string
	err    error
}

func (f *fakeFetcher) Refs(_ context.Context, cid string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refs[cid], nil
}

func (f *fakeFetcher) Block(_ context.Context, cid string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	block, ok := f.blocks[cid]
	if !ok {
		return nil, errors.Errorf("unknown block %s", cid)
	}
	return block, nil
}

func (f *fakeFetcher) Cat(_ context.Context, cid string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objs[cid]
	if !ok {
		return nil, errors.Errorf("unknown object %s", cid)
	}
	return obj, nil
}

func (f *fakeFetcher) IsOnline(_ context.Context) bool {
	return f.err == nil
}

func TestSampleIndices_Deterministic(t *testing.T) {
	first := SampleIndices("aa01", 100)
	second := SampleIndices("aa01", 100)
	require.DeepEqual(t, first, second)
	assert.NotEqual(t, 0, len(first))

	// A different salt walks a different path for most inputs.
	other := SampleIndices("bb02", 100)
	require.NotNil(t, other)
}

func TestSampleIndices_Bounds(t *testing.T) {
	for _, salt := range []string{"a", "bb", "ccc", "dddd", "e5e5"} {
		for _, n := range []int{1, 2, 3, 5, 17, 1000} {
			indices := SampleIndices(salt, n)
			if len(indices) > maxSampledBlocks {
				t.Fatalf("sampled %d blocks, max is %d", len(indices), maxSampledBlocks)
			}
			prev := -1
			for _, idx := range indices {
				if idx < 0 || idx >= n {
					t.Fatalf("index %d out of range [0,%d)", idx, n)
				}
				if idx < prev {
					t.Fatalf("indices not monotone: %v", indices)
				}
				prev = idx
			}
		}
	}
}

func TestSampleIndices_NoBlocks(t *testing.T) {
	assert.Equal(t, 0, len(SampleIndices("aa01", 0)))
}

func TestComputeProof_Deterministic(t *testing.T) {
	fetcher := &fakeFetcher{blocks: map[string][]byte{
		"b0": []byte("block zero"),
		"b1": []byte("block one"),
		"b2": []byte("block two"),
	}}
	refs := []string{"b0", "b1", "b2"}

	first, err := ComputeProof(context.Background(), fetcher, "aa01", "Qm1", refs)
	require.NoError(t, err)
	second, err := ComputeProof(context.Background(), fetcher, "aa01", "Qm1", refs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 64, len(first))

	other, err := ComputeProof(context.Background(), fetcher, "bb02", "Qm1", refs)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestComputeProof_EmptyRefsHashesWholeObject(t *testing.T) {
	obj := []byte("small object")
	fetcher := &fakeFetcher{objs: map[string][]byte{"Qm1": obj}}

	got, err := ComputeProof(context.Background(), fetcher, "salty", "Qm1", nil)
	require.NoError(t, err)

	want := sha256.Sum256(append(append([]byte{}, obj...), "salty"...))
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestComputeProof_FetchErrorFailsWhole(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("daemon offline")}
	_, err := ComputeProof(context.Background(), fetcher, "aa01", "Qm1", []string{"b0", "b1"})
	assert.ErrorContains(t, "daemon offline", err)
}
