package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/earshelf/internal/player"
	"github.com/franz/earshelf/internal/queue"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var playCmd = &cobra.Command{
	Use:   "play [work-id]",
	Short: "Play a work or playlist",
	Long: `Queue up a work (or a playlist with --playlist) and play it.

Playback resumes from the work's saved position unless --no-resume is
given. In a terminal the transport is interactive:

  space  play/pause          n  next track
  p      previous track      s  toggle shuffle
  r      cycle repeat mode   t  cycle sleep timer
  ←/→    seek 10s            -/+  volume
  q      quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Int64("playlist", 0, "play a playlist instead of a work")
	playCmd.Flags().Int("track", 0, "start at this track position (1-based)")
	playCmd.Flags().Bool("no-resume", false, "start from the beginning, ignoring saved progress")
}

func runPlay(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	playlistID, _ := cmd.Flags().GetInt64("playlist")
	startTrack, _ := cmd.Flags().GetInt("track")
	noResume, _ := cmd.Flags().GetBool("no-resume")

	if playlistID == 0 && len(args) == 0 {
		return fmt.Errorf("pass a work id or --playlist")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	var (
		tracks    []*store.Track
		heading   string
		resumePos float64
		resumeID  int64
	)

	if playlistID != 0 {
		p, err := db.GetPlaylist(playlistID)
		if err != nil {
			return fmt.Errorf("failed to get playlist: %w", err)
		}
		if p == nil {
			return fmt.Errorf("no playlist with id %d", playlistID)
		}
		heading = p.Name
		tracks, err = db.ListPlaylistTracks(playlistID)
		if err != nil {
			return fmt.Errorf("failed to list playlist tracks: %w", err)
		}
	} else {
		workID, err := parseWorkID(args[0])
		if err != nil {
			return err
		}
		w, err := db.GetWork(workID)
		if err != nil {
			return fmt.Errorf("failed to get work: %w", err)
		}
		if w == nil {
			return fmt.Errorf("no work with id %d", workID)
		}
		heading = w.Title
		tracks, err = db.ListWorkTracks(workID)
		if err != nil {
			return fmt.Errorf("failed to list tracks: %w", err)
		}

		if !noResume {
			if progress, err := db.GetProgress(workID); err == nil && progress != nil {
				resumeID = progress.TrackID
				resumePos = progress.PositionSec
			}
		}
	}

	if len(tracks) == 0 {
		return fmt.Errorf("nothing to play")
	}

	queued := make([]store.Track, len(tracks))
	start := 0
	for i, t := range tracks {
		queued[i] = *t
		if t.ID == resumeID {
			start = i
		}
	}
	if startTrack > 0 && startTrack <= len(queued) {
		start = startTrack - 1
		resumePos = 0
	}

	engine := player.New(&player.Config{
		Store:  db,
		Logger: logger,
	})
	defer engine.Close()
	engine.Session().SetQueue(queued, start)

	util.InfoLog("Playing: %s (%d tracks)", heading, len(queued))

	if err := engine.Play(); err != nil {
		return err
	}
	if resumePos > 1 && start == engine.Session().Index() {
		if err := engine.Seek(resumePos); err != nil {
			util.WarnLog("Failed to resume position: %v", err)
		}
	}

	if !util.IsTerminal(os.Stdin.Fd()) {
		return waitForEnd(engine)
	}
	return interactiveLoop(engine)
}

// waitForEnd blocks until the engine goes idle, for non-interactive runs
func waitForEnd(engine *player.Engine) error {
	for ev := range engine.Events() {
		if ev.Type == player.EventStateChanged && ev.State == player.StateIdle {
			return nil
		}
		if ev.Type == player.EventError {
			return ev.Err
		}
	}
	return nil
}

// interactiveLoop runs the raw-terminal transport: single-key commands in,
// one status line out.
func interactiveLoop(engine *player.Engine) error {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer func() {
		term.Restore(int(os.Stdin.Fd()), oldState)
		fmt.Println()
	}()

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(keys)
				return
			}
			if n > 0 {
				keys <- buf[0]
			}
		}
	}()

	var (
		spectrum []float64
		sleepIdx = -1 // index into player.SleepPresets, -1 = off
		escState int  // arrow keys arrive as ESC [ C / ESC [ D
	)

	for {
		select {
		case ev, ok := <-engine.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case player.EventSpectrum:
				spectrum = ev.Spectrum
			case player.EventStateChanged:
				if ev.State == player.StateIdle {
					drawStatus(engine, spectrum)
					return nil
				}
			case player.EventError:
				util.ErrorLog("%v", ev.Err)
			}
			drawStatus(engine, spectrum)

		case key, ok := <-keys:
			if !ok {
				return nil
			}

			// Arrow key escape sequences
			if escState == 0 && key == 0x1b {
				escState = 1
				continue
			}
			if escState == 1 {
				if key == '[' {
					escState = 2
				} else {
					escState = 0
				}
				continue
			}
			if escState == 2 {
				escState = 0
				switch key {
				case 'C':
					engine.Seek(engine.Position() + 10)
				case 'D':
					engine.Seek(engine.Position() - 10)
				}
				drawStatus(engine, spectrum)
				continue
			}

			switch key {
			case 'q', 3: // q or ctrl-c
				engine.Stop()
				return nil
			case ' ':
				engine.TogglePlayPause()
			case 'n':
				engine.Next()
			case 'p':
				engine.Previous()
			case 's':
				engine.Session().ToggleShuffle()
			case 'r':
				engine.Session().CycleRepeat()
			case '+', '=':
				engine.SetVolume(engine.Volume() + 0.05)
			case '-':
				engine.SetVolume(engine.Volume() - 0.05)
			case 't':
				sleepIdx++
				if sleepIdx >= len(player.SleepPresets) {
					sleepIdx = -1
					engine.CancelSleepTimer()
				} else {
					engine.SetSleepTimer(player.SleepPresets[sleepIdx])
				}
			}
			if engine.State() == player.StateIdle {
				return nil
			}
			drawStatus(engine, spectrum)
		}
	}
}

// drawStatus repaints the single transport status line
func drawStatus(engine *player.Engine, spectrum []float64) {
	track := engine.CurrentTrack()
	if track == nil {
		fmt.Print("\r\033[K stopped")
		return
	}

	icon := "▶"
	if engine.State() == player.StatePaused {
		icon = "⏸"
	}

	session := engine.Session()
	var flags []string
	if session.Shuffle() {
		flags = append(flags, "shuffle")
	}
	if mode := session.RepeatMode(); mode != queue.RepeatOff {
		flags = append(flags, "repeat "+mode.String())
	}
	if left := engine.SleepRemaining(); left > 0 {
		flags = append(flags, "sleep "+formatSeconds(left.Seconds()))
	}
	flagText := ""
	if len(flags) > 0 {
		flagText = "  [" + strings.Join(flags, ", ") + "]"
	}

	line := fmt.Sprintf(" %s %d/%d  %s  %s/%s  vol %d%%%s",
		icon,
		session.Index()+1, session.Len(),
		track.Title,
		formatSeconds(engine.Position()), formatSeconds(engine.Duration()),
		int(engine.Volume()*100+0.5),
		flagText,
	)

	width := util.GetTerminalWidth()
	if meter := spectrumMeter(spectrum, 16); meter != "" && len(line)+20 < width {
		line += "  " + meter
	}
	if len(line) > width {
		line = line[:width]
	}
	fmt.Print("\r\033[K" + line)
}

var meterLevels = []rune("▁▂▃▄▅▆▇█")

// spectrumMeter compresses a bin frame into a fixed-width block meter
func spectrumMeter(bins []float64, width int) string {
	if len(bins) == 0 {
		return ""
	}
	if width > len(bins) {
		width = len(bins)
	}

	var sb strings.Builder
	perCell := float64(len(bins)) / float64(width)
	for i := 0; i < width; i++ {
		peak := 0.0
		lo := int(float64(i) * perCell)
		hi := int(float64(i+1) * perCell)
		if hi > len(bins) {
			hi = len(bins)
		}
		for _, v := range bins[lo:hi] {
			if v > peak {
				peak = v
			}
		}
		level := int(peak * float64(len(meterLevels)-1))
		if level >= len(meterLevels) {
			level = len(meterLevels) - 1
		}
		sb.WriteRune(meterLevels[level])
	}
	return sb.String()
}
