package protocol

// ChunkSize is the fixed size of every binary transfer frame except the last.
const ChunkSize = 8 * 1024

// FrameCount returns the number of binary frames carrying size bytes.
func FrameCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

// Chunk slices payload into ChunkSize frames in order. The frames alias
// payload; the last one may be shorter.
func Chunk(payload []byte) [][]byte {
	frames := make([][]byte, 0, FrameCount(int64(len(payload))))
	for i := 0; i < len(payload); i += ChunkSize {
		end := min(i+ChunkSize, len(payload))
		frames = append(frames, payload[i:end])
	}
	return frames
}
