package drmcore

// Blob is an immutable byte payload referenced by property values, most
// prominently mode timings. Blobs are shared by every state snapshot that
// references them and live until the last reference is dropped.
type Blob struct {
	id   uint32
	data []byte
}

func newBlob(id uint32, data []byte) *Blob {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Blob{id: id, data: owned}
}

func (b *Blob) ID() uint32 { return b.id }

func (b *Blob) Size() int { return len(b.data) }

// Data returns the payload. Callers must not mutate it.
func (b *Blob) Data() []byte { return b.data }
