package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/dmgcore/gbcore/internal/emu"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const sampleRate = 48000

// shades maps the PPU's 2-bit output (0 lightest .. 3 darkest) to an
// 8-bit grayscale level.
var shades = [4]byte{0xFF, 0xAA, 0x55, 0x00}

// App is the ebiten host shell: a thin driver that feeds keyboard state
// into a Machine once per frame and presents what StepFrame hands back.
// It implements emu.HostSink directly, so StepFrame calls back into it
// for PresentFrame/PushAudio/PollInput without the core ever importing
// ebiten.
type App struct {
	cfg Config
	m   *emu.Machine

	tex *ebiten.Image
	pix []byte // scratch RGBA buffer, reused every frame

	paused bool
	fast   bool

	buttons emu.Buttons

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	queue       *audioQueue

	masterVolume int // 0..100
	showVolume   bool
	volumeTicks  int // frames left to show the volume overlay
}

// NewApp builds the window and wires up the audio pipeline. The returned
// App satisfies emu.HostSink and can be driven with ebiten.RunGame.
func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)

	a := &App{
		cfg:          cfg,
		m:            m,
		queue:        &audioQueue{},
		masterVolume: 100,
	}

	a.audioCtx = audio.NewContext(sampleRate)
	src := &apuStream{q: a.queue, mono: !cfg.AudioStereo, lowLatency: cfg.AudioLowLatency}
	if p, err := a.audioCtx.NewPlayer(src); err == nil {
		a.audioPlayer = p
		a.applyPlayerBufferSize()
		a.audioPlayer.Play()
	}
	return a
}

func (a *App) Run() error { return ebiten.RunGame(a) }

// PresentFrame implements emu.HostSink by converting the 2-bit shade
// buffer into the texture ebiten draws next.
func (a *App) PresentFrame(frame *emu.Frame) {
	if a.pix == nil {
		a.pix = make([]byte, 160*144*4)
	}
	for y := 0; y < 144; y++ {
		row := frame[y]
		base := y * 160 * 4
		for x := 0; x < 160; x++ {
			g := shades[row[x]&0x03]
			i := base + x*4
			a.pix[i] = g
			a.pix[i+1] = g
			a.pix[i+2] = g
			a.pix[i+3] = 0xFF
		}
	}
}

// PushAudio implements emu.HostSink by queuing one stereo sample for the
// audio player's goroutine to drain.
func (a *App) PushAudio(left, right int16) { a.queue.push(left, right) }

// PollInput implements emu.HostSink, handing StepFrame the button state
// Update collected this tick.
func (a *App) PollInput() emu.Buttons { return a.buttons }

func (a *App) readButtons() {
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.buttons = btn
}

func (a *App) shiftHeld() bool {
	return ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)
}

func (a *App) Update() error {
	a.readButtons()

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)
	a.applyPlayerBufferSize()

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.m.ResetPostBoot()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyB) {
		a.m.ResetWithBoot()
	}

	shift := a.shiftHeld()
	if shift && inpututil.IsKeyJustPressed(ebiten.KeyEqual) {
		a.setVolume(a.masterVolume + 5)
	}
	if shift && inpututil.IsKeyJustPressed(ebiten.KeyMinus) {
		a.setVolume(a.masterVolume - 5)
	}
	if shift && inpututil.IsKeyJustPressed(ebiten.Key1) {
		a.showVolume = !a.showVolume
	}
	if a.volumeTicks > 0 {
		a.volumeTicks--
	}

	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.m.StepFrame(a)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	if !a.paused {
		if a.fast {
			for i := 0; i < 5; i++ {
				a.m.StepFrame(a)
			}
		} else {
			a.m.StepFrame(a)
		}
	}
	return nil
}

func (a *App) setVolume(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	a.masterVolume = pct
	a.m.SetMasterVolume(pct)
	a.showVolume = true
	a.volumeTicks = 90
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	if a.pix != nil {
		a.tex.WritePixels(a.pix)
	}
	screen.DrawImage(a.tex, nil)

	if a.showVolume && a.volumeTicks > 0 {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Volume: %d%%", a.masterVolume), 4, 4)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

func (a *App) saveScreenshot() error {
	if a.pix == nil {
		return nil
	}
	img := &image.RGBA{
		Pix:    make([]byte, len(a.pix)),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	copy(img.Pix, a.pix)
	ts := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("screenshot_%s.png", ts)
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
