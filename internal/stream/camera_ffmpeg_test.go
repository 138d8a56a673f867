package stream

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestSplitJPEG(t *testing.T) {
	a := jpegBytes(t, 8, 8)
	b := jpegBytes(t, 16, 4)

	stream := append([]byte("garbage"), a...)
	stream = append(stream, b...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestSplitJPEG_TruncatedFrame(t *testing.T) {
	a := jpegBytes(t, 8, 8)

	scanner := bufio.NewScanner(bytes.NewReader(a[:len(a)-2]))
	scanner.Split(splitJPEG)

	assert.False(t, scanner.Scan())
	assert.Error(t, scanner.Err())
}

func TestFFmpegOpener_Args(t *testing.T) {
	o := &FFmpegOpener{Binary: "ffmpeg", Format: "v4l2"}
	assert.Equal(t,
		[]string{"-hide_banner", "-loglevel", "error", "-f", "v4l2", "-i", "/dev/video0", "-f", "image2pipe", "-vcodec", "mjpeg", "-"},
		o.args("/dev/video0"))

	o.Format = ""
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-i", "rtsp://cam/1", "-f", "image2pipe", "-vcodec", "mjpeg", "-"},
		o.args("rtsp://cam/1"))
}

func TestFFmpegOpener_MissingBinary(t *testing.T) {
	o := &FFmpegOpener{Binary: "/nonexistent/ffmpeg", ReadTimeout: time.Second}

	_, err := o.Open(context.Background(), "/dev/video0")
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}

func TestDeviceLocks(t *testing.T) {
	locks := newDeviceLocks()

	release, err := locks.acquire("/dev/video0")
	require.NoError(t, err)

	_, err = locks.acquire("/dev/video0")
	assert.ErrorIs(t, err, ErrCameraBusy)

	other, err := locks.acquire("/dev/video1")
	require.NoError(t, err)
	other()

	release()
	release() // idempotent

	again, err := locks.acquire("/dev/video0")
	require.NoError(t, err)
	again()
}
