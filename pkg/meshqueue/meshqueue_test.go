package meshqueue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generatorPoint is the compressed secp256k1 base point, a valid public key.
const generatorPoint = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Get(), "Get on empty queue returns nil")

	for i := 0; i < 5; i++ {
		q.Put([]byte{byte(i)})
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte{byte(i)}, q.Get())
	}
	assert.True(t, q.Empty())
}

func TestQueueReadySignal(t *testing.T) {
	q := NewQueue()

	select {
	case <-q.Ready():
		t.Fatal("ready signalled before Put")
	default:
	}

	q.Put([]byte("a"))
	q.Put([]byte("b"))

	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not signalled after Put")
	}

	// Multiple puts coalesce into one pending signal.
	select {
	case <-q.Ready():
		t.Fatal("expected a single coalesced signal")
	default:
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Put([]byte(fmt.Sprint(i)))
		}
	}()

	got := make([]string, 0, n)
	for len(got) < n {
		if q.Empty() {
			<-q.Ready()
			continue
		}
		got = append(got, string(q.Get()))
	}
	wg.Wait()

	for i, s := range got {
		require.Equal(t, fmt.Sprint(i), s, "order broken at %d", i)
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()
	peer := PeerID(generatorPoint)

	assert.Nil(t, r.Lookup(peer))

	first, created := r.GetOrCreate(peer)
	require.True(t, created)
	require.NotNil(t, first)

	second, created := r.GetOrCreate(peer)
	assert.False(t, created, "second call must reuse the pair")
	assert.Same(t, first, second)
	assert.Same(t, first, r.Lookup(peer))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentCreateYieldsOnePair(t *testing.T) {
	r := NewRegistry()
	peer := PeerID("03aa")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.GetOrCreate(peer); ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestRegistryPeersSorted(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("03bb")
	r.GetOrCreate("02aa")
	r.GetOrCreate("03aa")

	assert.Equal(t, []PeerID{"02aa", "03aa", "03bb"}, r.Peers())
}

func TestParsePeerID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PeerID
		wantErr error
	}{
		{"valid", generatorPoint, PeerID(generatorPoint), nil},
		{"upper case normalised", "0279BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798", PeerID(generatorPoint), nil},
		{"empty", "  ", "", ErrEmptyPeerID},
		{"not hex", "zz", "", ErrInvalidPeerID},
		{"wrong length", "0279be", "", ErrInvalidPeerID},
		{"not on curve", "05" + generatorPoint[2:], "", ErrInvalidPeerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeerID(tt.input)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeerIDShort(t *testing.T) {
	assert.Equal(t, "0279", PeerID(generatorPoint).Short())
	assert.Equal(t, "ab", PeerID("ab").Short())
}
