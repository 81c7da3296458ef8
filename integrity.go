package quorumlog

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"

	"github.com/zeebo/blake3"
)

// KeySize is the length of a digest key passed to WithKey.
const KeySize = 32

// Digest is the BLAKE3 keyed hash of a message payload, computed when the
// message is written and checked again when it is read.
type Digest [32]byte

// signer computes keyed digests. Hashers are pooled because readers verify
// concurrently; Reset keeps the key.
type signer struct {
	pool sync.Pool
}

func newSigner(key []byte) *signer {
	if key == nil {
		key = make([]byte, KeySize)
		if _, err := rand.Read(key); err != nil {
			panic("quorumlog: generating digest key: " + err.Error())
		}
	} else {
		key = append([]byte(nil), key...)
	}

	// Validate once so pool.New cannot fail later.
	if _, err := blake3.NewKeyed(key); err != nil {
		panic("quorumlog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	s := &signer{}
	s.pool.New = func() any {
		h, _ := blake3.NewKeyed(key)
		return h
	}
	return s
}

func (s *signer) sum(payload []byte) Digest {
	h := s.pool.Get().(*blake3.Hasher)
	h.Reset()
	_, _ = h.Write(payload)

	var d Digest
	copy(d[:], h.Sum(nil))
	s.pool.Put(h)
	return d
}

func (s *signer) verify(payload []byte, d Digest) bool {
	got := s.sum(payload)
	return subtle.ConstantTimeCompare(got[:], d[:]) == 1
}
