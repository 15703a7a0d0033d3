package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/config"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/soundboard"
	"github.com/spf13/cobra"
)

var ErrDoctorFailed = errors.New("some prerequisites are missing")

type check struct {
	name   string
	ok     bool
	detail string
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runChecks(deps.Config, exec.LookPath)
			if !printChecks(cmd.OutOrStdout(), checks) {
				return ErrDoctorFailed
			}
			return nil
		},
	}
}

func runChecks(cfg *config.Config, lookPath func(string) (string, error)) []check {
	var checks []check

	tool := func(name string, path string, required bool) {
		if found, err := lookPath(path); err != nil {
			checks = append(checks, check{name, !required, "not found: " + path})
		} else {
			checks = append(checks, check{name, true, found})
		}
	}
	tool("ffmpeg", cfg.FFmpegPath, true)
	tool("yt-dlp", cfg.YTDLPPath, false)

	if err := cfg.Validate(); err != nil {
		checks = append(checks, check{"configuration", false, err.Error()})
	} else {
		checks = append(checks, check{"configuration", true, "complete"})
	}

	if board, err := soundboard.Load(cfg.SoundboardFile); err != nil {
		checks = append(checks, check{"soundboard", false, err.Error()})
	} else {
		checks = append(checks, check{"soundboard", true, fmt.Sprintf("%d clips", len(board.Clips))})
	}

	for _, cue := range []string{cfg.JoinCue, cfg.LeaveCue} {
		if _, err := os.Stat(cue); err != nil {
			checks = append(checks, check{"cue", false, err.Error()})
		} else {
			checks = append(checks, check{"cue", true, cue})
		}
	}
	return checks
}

func printChecks(w io.Writer, checks []check) bool {
	ok := true
	for _, c := range checks {
		mark := "ok"
		if !c.ok {
			mark = "FAIL"
			ok = false
		}
		fmt.Fprintf(w, "[%4s] %-13s %s\n", mark, c.name, c.detail)
	}
	if ok {
		fmt.Fprintln(w, "\nAll prerequisites met.")
	} else {
		fmt.Fprintln(w, "\nSome prerequisites are missing.")
	}
	return ok
}
