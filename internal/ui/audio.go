package ui

import (
	"encoding/binary"
	"sync"
	"time"
)

// audioQueue is a small mutex-guarded ring of stereo int16 samples. The
// ebiten/oto player drains it from its own goroutine via apuStream.Read
// while Update() fills it once per StepFrame call through PushAudio; this
// is the only place in the repo that needs a mutex, since everything
// inside internal/emu and its core packages runs on a single goroutine.
type audioQueue struct {
	mu   sync.Mutex
	l, r []int16
}

func (q *audioQueue) push(l, r int16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	const cap = 1 << 14
	if len(q.l) >= cap {
		// drop the oldest frame rather than block the emulation loop
		q.l = q.l[1:]
		q.r = q.r[1:]
	}
	q.l = append(q.l, l)
	q.r = append(q.r, r)
}

func (q *audioQueue) pull(max int) (l, r []int16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.l) {
		max = len(q.l)
	}
	l = append(l, q.l[:max]...)
	r = append(r, q.r[:max]...)
	q.l = q.l[max:]
	q.r = q.r[max:]
	return l, r
}

func (q *audioQueue) available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.l)
}

// applyPlayerBufferSize sets the audio player's internal buffer to a small
// size for low latency: ~20ms while fast-forwarding or in low-latency
// mode, ~40ms otherwise.
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	bufMs := 40
	if a.cfg.AudioLowLatency || a.fast {
		bufMs = 20
	}
	a.audioPlayer.SetBufferSize(time.Duration(bufMs) * time.Millisecond)
}

// apuStream implements io.Reader by draining the App's audio queue and
// converting frames to 16-bit little-endian stereo PCM.
type apuStream struct {
	q          *audioQueue
	mono       bool
	lowLatency bool
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	maxReq := len(p) / 4
	capFrames := 2048 // ~42.7ms at 48kHz
	if s.lowLatency {
		capFrames = 1024
	}
	if maxReq > capFrames {
		maxReq = capFrames
	}

	want := maxReq
	if avail := s.q.available(); avail < want {
		want = avail
	}
	ls, rs := s.q.pull(want)

	i := 0
	for j := range ls {
		if s.mono {
			m := int16((int32(ls[j]) + int32(rs[j])) / 2)
			binary.LittleEndian.PutUint16(p[i:], uint16(m))
			binary.LittleEndian.PutUint16(p[i+2:], uint16(m))
		} else {
			binary.LittleEndian.PutUint16(p[i:], uint16(ls[j]))
			binary.LittleEndian.PutUint16(p[i+2:], uint16(rs[j]))
		}
		i += 4
	}
	if i == 0 {
		// Nothing buffered: emit a short burst of silence rather than
		// stalling the player.
		silenceFrames := 128
		if silenceFrames > maxReq {
			silenceFrames = maxReq
		}
		for k := 0; k < silenceFrames*4 && k+3 < len(p); k += 4 {
			binary.LittleEndian.PutUint16(p[k:], 0)
			binary.LittleEndian.PutUint16(p[k+2:], 0)
		}
		return silenceFrames * 4, nil
	}
	return i, nil
}
