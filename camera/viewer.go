package camera

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/logging"
)

var ErrNotRunning = errors.New("viewer not running")

// ViewerState is the state of the player launched for one stream.
type ViewerState struct {
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	ExitErr   string    `json:"exit_error,omitempty"`

	cmd  *exec.Cmd
	done chan struct{}
}

// Viewer launches an external player per stream. Args may contain {url},
// {codec} and {label}.
type Viewer struct {
	player string
	args   []string

	mu     sync.Mutex
	states map[string]*ViewerState
	log    zerolog.Logger
}

func NewViewer(player string, args []string) *Viewer {
	return &Viewer{
		player: player,
		args:   args,
		states: map[string]*ViewerState{},
		log:    logging.Component("viewer"),
	}
}

// Command returns the argv for cam.
func (v *Viewer) Command(cam codec.CameraDescriptor) []string {
	r := strings.NewReplacer("{url}", cam.StreamURL, "{codec}", cam.Codec, "{label}", cam.Label)
	argv := make([]string, 0, len(v.args)+1)
	argv = append(argv, v.player)
	for _, a := range v.args {
		argv = append(argv, r.Replace(a))
	}
	return argv
}

// Launch starts a player for cam unless one is already running for its
// label.
func (v *Viewer) Launch(cam codec.CameraDescriptor) (ViewerState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if st, ok := v.states[cam.Label]; ok && st.Running {
		return *st, nil
	}

	argv := v.Command(cam)
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		v.log.Error().Err(err).Str("camera", cam.Label).Msg("failed to launch viewer")
		return ViewerState{}, fmt.Errorf("failed to start %s: %w", v.player, err)
	}

	st := &ViewerState{
		Label:     cam.Label,
		URL:       cam.StreamURL,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}
	v.states[cam.Label] = st
	v.log.Info().Str("camera", cam.Label).Int("pid", st.PID).Msg("viewer launched")

	go v.monitor(st)
	return *st, nil
}

// monitor records the player's exit.
func (v *Viewer) monitor(st *ViewerState) {
	err := st.cmd.Wait()

	v.mu.Lock()
	st.Running = false
	if err != nil {
		st.ExitErr = err.Error()
	}
	v.mu.Unlock()
	close(st.done)

	v.log.Info().Str("camera", st.Label).Err(err).Msg("viewer exited")
}

// Kill stops the player for label and waits for it to exit.
func (v *Viewer) Kill(label string) error {
	v.mu.Lock()
	st, ok := v.states[label]
	if !ok || !st.Running {
		v.mu.Unlock()
		return ErrNotRunning
	}
	proc, done := st.cmd.Process, st.done
	v.mu.Unlock()

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill viewer: %w", err)
	}
	<-done
	return nil
}

// KillAll stops every running player.
func (v *Viewer) KillAll() {
	for _, st := range v.States() {
		if st.Running {
			_ = v.Kill(st.Label)
		}
	}
}

// States returns a snapshot of all players launched this session.
func (v *Viewer) States() []ViewerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ViewerState, 0, len(v.states))
	for _, st := range v.states {
		out = append(out, *st)
	}
	return out
}

// State returns the player state for label.
func (v *Viewer) State(label string) (ViewerState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.states[label]
	if !ok {
		return ViewerState{}, false
	}
	return *st, true
}
