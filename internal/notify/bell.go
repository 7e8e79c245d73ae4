// Package notify plays a completion sound when a dialogue finishes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// PlayTimeout bounds one invocation of the audio player.
const PlayTimeout = 10 * time.Second

// MinSoundSize is the smallest file treated as a playable sound.
const MinSoundSize = 100

var (
	// ErrNoPlayer is returned when no audio command exists for the platform.
	ErrNoPlayer = errors.New("no audio command found")

	// ErrSoundFile is returned when the sound file is missing or too small.
	ErrSoundFile = errors.New("sound file unusable")
)

// Bell plays a sound file at most once per session.
type Bell struct {
	path string
	goos string

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error

	mu     sync.Mutex
	played map[string]bool
}

// NewBell creates a Bell for the sound file at path.
func NewBell(path string) *Bell {
	return &Bell{
		path:     path,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		played: make(map[string]bool),
	}
}

// Path returns the sound file location.
func (b *Bell) Path() string {
	return b.path
}

type player struct {
	name string
	args []string
}

// players lists the usable audio commands for this platform in the order
// they are tried.
func (b *Bell) players() ([]player, error) {
	var out []player
	switch b.goos {
	case "darwin":
		out = append(out, player{"afplay", []string{b.path}})
	case "linux":
		for _, name := range []string{"aplay", "paplay"} {
			if _, err := b.lookPath(name); err == nil {
				out = append(out, player{name, []string{b.path}})
			}
		}
	case "windows":
		script := fmt.Sprintf(`(New-Object Media.SoundPlayer "%s").PlaySync()`, b.path)
		out = append(out, player{"powershell", []string{"-c", script}})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w (OS: %s)", ErrNoPlayer, b.goos)
	}
	return out, nil
}

// Command returns the first player and its arguments for this platform.
func (b *Bell) Command() (string, []string, error) {
	players, err := b.players()
	if err != nil {
		return "", nil, err
	}
	return players[0].name, players[0].args, nil
}

// Check reports the audio command that would be used.
func (b *Bell) Check() (string, error) {
	name, _, err := b.Command()
	return name, err
}

// Play plays the sound for sessionID unless it was already played for that
// session. It reports whether the sound was played.
func (b *Bell) Play(ctx context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	if b.played[sessionID] {
		b.mu.Unlock()
		return false, nil
	}
	b.played[sessionID] = true
	b.mu.Unlock()

	info, err := os.Stat(b.path)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrSoundFile, b.path, err)
	}
	if info.Size() < MinSoundSize {
		return false, fmt.Errorf("%w: %s is only %d bytes", ErrSoundFile, b.path, info.Size())
	}

	players, err := b.players()
	if err != nil {
		return false, err
	}

	// A player that fails hands over to the next one.
	var errs []error
	for _, p := range players {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		playCtx, cancel := context.WithTimeout(ctx, PlayTimeout)
		err := b.run(playCtx, p.name, p.args...)
		cancel()
		if err == nil {
			return true, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	return false, errors.Join(errs...)
}

// Reset forgets that sessionID was played. An empty ID resets every session.
func (b *Bell) Reset(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessionID == "" {
		b.played = make(map[string]bool)
		return
	}
	delete(b.played, sessionID)
}
