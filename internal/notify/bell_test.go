package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

func newTestBell(t *testing.T, goos string, size int, have ...string) (*Bell, *[]call) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bell.wav")
	if size > 0 {
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var calls []call
	b := NewBell(path)
	b.goos = goos
	b.lookPath = func(name string) (string, error) {
		for _, h := range have {
			if h == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
	b.run = func(_ context.Context, name string, args ...string) error {
		calls = append(calls, call{name, args})
		return nil
	}
	return b, &calls
}

func TestBell_Command(t *testing.T) {
	tests := []struct {
		goos    string
		have    []string
		want    string
		wantErr bool
	}{
		{"darwin", nil, "afplay", false},
		{"linux", []string{"aplay", "paplay"}, "aplay", false},
		{"linux", []string{"paplay"}, "paplay", false},
		{"linux", nil, "", true},
		{"windows", nil, "powershell", false},
		{"plan9", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.want, func(t *testing.T) {
			b, _ := newTestBell(t, tt.goos, 0, tt.have...)
			got, err := b.Check()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrNoPlayer) || !strings.Contains(err.Error(), "OS: "+tt.goos) {
					t.Errorf("error = %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBell_WindowsScript(t *testing.T) {
	b, _ := newTestBell(t, "windows", 0)
	_, args, err := b.Command()
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 || args[0] != "-c" || !strings.Contains(args[1], "Media.SoundPlayer") || !strings.Contains(args[1], b.Path()) {
		t.Errorf("args = %q", args)
	}
}

func TestBell_PlayOncePerSession(t *testing.T) {
	b, calls := newTestBell(t, "linux", 2048, "aplay")
	ctx := context.Background()

	played, err := b.Play(ctx, "s1")
	if err != nil || !played {
		t.Fatalf("first Play() = %v, %v", played, err)
	}
	if played, _ := b.Play(ctx, "s1"); played {
		t.Error("second Play() for the same session should be skipped")
	}
	if played, _ := b.Play(ctx, "s2"); !played {
		t.Error("Play() for a new session should play")
	}
	if len(*calls) != 2 || (*calls)[0].name != "aplay" || (*calls)[0].args[0] != b.Path() {
		t.Errorf("calls = %+v", *calls)
	}

	b.Reset("s1")
	if played, _ := b.Play(ctx, "s1"); !played {
		t.Error("Play() after Reset should play again")
	}
	b.Reset("")
	if played, _ := b.Play(ctx, "s2"); !played {
		t.Error("Play() after full Reset should play again")
	}
}

func TestBell_BadSoundFile(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"missing", 0},
		{"too small", MinSoundSize - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, calls := newTestBell(t, "darwin", tt.size)
			played, err := b.Play(context.Background(), "s1")
			if played || !errors.Is(err, ErrSoundFile) {
				t.Errorf("Play() = %v, %v", played, err)
			}
			if len(*calls) != 0 {
				t.Error("player should not run")
			}
		})
	}
}

func TestBell_PlayerError(t *testing.T) {
	b, _ := newTestBell(t, "darwin", MinSoundSize)
	b.run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }

	if _, err := b.Play(context.Background(), "s1"); err == nil || !strings.HasPrefix(err.Error(), "afplay:") {
		t.Errorf("Play() error = %v", err)
	}
}

func TestBell_FallbackPlayer(t *testing.T) {
	b, _ := newTestBell(t, "linux", MinSoundSize, "aplay", "paplay")
	var tried []string
	b.run = func(_ context.Context, name string, _ ...string) error {
		tried = append(tried, name)
		if name == "aplay" {
			return errors.New("no soundcards found")
		}
		return nil
	}

	played, err := b.Play(context.Background(), "s1")
	if err != nil || !played {
		t.Fatalf("Play() = %v, %v", played, err)
	}
	if strings.Join(tried, ",") != "aplay,paplay" {
		t.Errorf("tried %v, want aplay then paplay", tried)
	}

	b.run = func(_ context.Context, name string, _ ...string) error { return errors.New(name + " broken") }
	played, err = b.Play(context.Background(), "s2")
	if played || err == nil || !strings.Contains(err.Error(), "aplay: aplay broken") || !strings.Contains(err.Error(), "paplay: paplay broken") {
		t.Errorf("Play() with every player failing = %v, %v", played, err)
	}
}
