package fingerprint

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

// XXHash fingerprints uploaded content with 64-bit xxhash. The fingerprint
// is a cache key for non-adversarial input, not an integrity proof, so a
// fast non-cryptographic hash is the right trade.
type XXHash struct{}

func New() *XXHash {
	return &XXHash{}
}

func (*XXHash) New() ports.FingerprintDigest {
	return &digest{hash: xxhash.New()}
}

type digest struct {
	hash *xxhash.Digest
	size int64
}

func (d *digest) Write(p []byte) (int, error) {
	n, err := d.hash.Write(p)
	d.size += int64(n)
	return n, err
}

func (d *digest) Fingerprint() string {
	return fmt.Sprintf("%016x", d.hash.Sum64())
}

func (d *digest) Size() int64 {
	return d.size
}
